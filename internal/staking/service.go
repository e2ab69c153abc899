// Package staking runs pool operations against a store: it loads pool and
// position records, plans the accounting with the reward package, moves
// tokens through custody and writes the results back in one transaction.
package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stakeScope/internal/clock"
	"stakeScope/internal/custody"
	"stakeScope/internal/metrics"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// Options holds the optional collaborators of a Service.
type Options struct {
	Clock   clock.Clock
	Sink    storage.EventSink
	Metrics *metrics.Metrics
}

// Service executes pool operations. It holds no pool state of its own.
type Service struct {
	store   storage.Store
	clock   clock.Clock
	sink    storage.EventSink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService builds a Service over store.
func NewService(store storage.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New(clock.DefaultEpochLength)
	}
	return &Service{
		store:   store,
		clock:   opts.Clock,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

type CreatePoolRequest struct {
	Creator     common.Address
	StakeAsset  common.Address
	RewardAsset common.Address
	StakeCap    uint64
}

// StakeRequest moves Amount stake units between StakeAccount and the pool.
// Pending reward is paid to RewardAccount.
type StakeRequest struct {
	Pool          common.Hash
	Participant   common.Address
	StakeAccount  common.Address
	RewardAccount common.Address
	Amount        uint64
}

type ClaimRequest struct {
	Pool          common.Hash
	Participant   common.Address
	RewardAccount common.Address
}

// Receipt describes a committed operation.
type Receipt struct {
	Pool       model.Pool
	Position   *model.Position
	Amount     uint64
	RewardPaid uint64
	Transfers  []custody.Transfer
}

// Credit adds amount of asset to the custody account ref, opening it if
// needed. It stands in for deposits arriving from outside, such as reward
// top-ups into a pool's reward vault.
func (s *Service) Credit(ctx context.Context, ref, asset common.Address, amount uint64) error {
	started := time.Now()
	err := s.credit(ctx, ref, asset, amount)
	s.metrics.Observe(string(model.EventCredit), started, err)
	if err != nil {
		s.logger.Warn("credit failed", zap.String("account", ref.Hex()), zap.Uint64("amount", amount), zap.Error(err))
		return err
	}

	s.logger.Info("account credited",
		zap.String("account", ref.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Uint64("amount", amount),
	)
	s.emit(ctx, model.Event{Kind: model.EventCredit, Account: ref.Hex(), Amount: amount})
	return nil
}

func (s *Service) credit(ctx context.Context, ref, asset common.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("credit %s: %w", ref.Hex(), model.ErrInvalidAmount)
	}
	return s.store.Update(ctx, func(tx storage.Tx) error {
		return tx.Custody().Credit(ctx, ref, asset, amount)
	})
}

// Pool returns the committed state of a pool.
func (s *Service) Pool(ctx context.Context, id common.Hash) (model.Pool, error) {
	var pool model.Pool
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		pool, err = loadPool(ctx, tx, id)
		return err
	})
	return pool, err
}

// Position returns the committed position of participant in a pool.
func (s *Service) Position(ctx context.Context, poolID common.Hash, participant common.Address) (model.Position, error) {
	var pos model.Position
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		pos, err = loadPosition(ctx, tx, poolID, participant)
		return err
	})
	return pos, err
}

// Account returns a custody account.
func (s *Service) Account(ctx context.Context, ref common.Address) (model.Account, error) {
	var acct model.Account
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		acct, err = tx.Custody().Account(ctx, ref)
		return err
	})
	return acct, err
}

// PendingReward returns what a claim by participant would pay right now,
// including reward that reached the vault since the last sync. Nothing is
// written.
func (s *Service) PendingReward(ctx context.Context, poolID common.Hash, participant common.Address) (uint64, error) {
	var pending uint64
	err := s.store.View(ctx, func(tx storage.Tx) error {
		pool, err := loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		pos, err := loadPosition(ctx, tx, poolID, participant)
		if err != nil {
			return err
		}
		p := newPlan(pool)
		if err := p.sync(ctx, tx); err != nil {
			return err
		}
		pending, err = p.pending(pos)
		return err
	})
	return pending, err
}

// finish records metrics, logs and journals one operation. Journal failures
// are logged; the operation stays committed.
func (s *Service) finish(ctx context.Context, op model.EventKind, started time.Time, rcpt Receipt, err error, fields ...zap.Field) {
	s.metrics.Observe(string(op), started, err)
	if err != nil {
		s.logger.Warn("operation failed", append(fields, zap.String("op", string(op)), zap.Error(err))...)
		return
	}

	pool := rcpt.Pool
	s.metrics.RewardPaid(rcpt.RewardPaid)
	s.metrics.PoolState(pool.ID.Hex(), pool.TotalStaked.Float64(), pool.LastRewardBalance)

	s.logger.Info("operation committed", append(fields,
		zap.String("op", string(op)),
		zap.Uint64("reward_paid", rcpt.RewardPaid),
		zap.String("total_staked", model.FormatUint256(pool.TotalStaked)),
		zap.String("accumulator", model.FormatUint256(pool.Accumulator)),
	)...)

	ev := model.Event{
		Kind:        op,
		Pool:        pool.ID.Hex(),
		Amount:      rcpt.Amount,
		RewardPaid:  rcpt.RewardPaid,
		Accumulator: model.FormatUint256(pool.Accumulator),
		TotalStaked: model.FormatUint256(pool.TotalStaked),
	}
	if rcpt.Position != nil {
		ev.Participant = rcpt.Position.Participant.Hex()
	}
	s.emit(ctx, ev)
}

func (s *Service) emit(ctx context.Context, events ...model.Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	now := s.clock.Now().Unix()
	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].Timestamp = now
	}
	if err := s.sink.PutEvents(ctx, events); err != nil {
		s.logger.Warn("journal events failed", zap.Int("count", len(events)), zap.Error(err))
	}
}

func loadPool(ctx context.Context, tx storage.Tx, id common.Hash) (model.Pool, error) {
	pool, ok, err := tx.Pool(ctx, id)
	if err != nil {
		return model.Pool{}, fmt.Errorf("load pool %s: %w", id.Hex(), err)
	}
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), model.ErrPoolNotFound)
	}
	return pool, nil
}

func loadPosition(ctx context.Context, tx storage.Tx, poolID common.Hash, participant common.Address) (model.Position, error) {
	pos, ok, err := tx.Position(ctx, poolID, participant)
	if err != nil {
		return model.Position{}, fmt.Errorf("load position %s: %w", participant.Hex(), err)
	}
	if !ok {
		return model.Position{}, fmt.Errorf("position %s in pool %s: %w", participant.Hex(), poolID.Hex(), model.ErrPositionNotFound)
	}
	return pos, nil
}
