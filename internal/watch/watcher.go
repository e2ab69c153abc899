// Package watch periodically syncs pools and mirrors on-chain reward vault
// balances into the local custody ledger.
package watch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stakeScope/internal/chain"
	"stakeScope/internal/model"
	"stakeScope/internal/staking"
)

const DefaultSchedule = "*/30 * * * * *"

// BalanceSource reads ERC-20 balances. *chain.Client satisfies it.
type BalanceSource interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Config holds runtime settings for the watcher.
type Config struct {
	Pools []common.Hash
	// RewardToken is read at each pool's reward vault address. The zero
	// address disables mirroring.
	RewardToken  common.Address
	Schedule     string
	TickTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Watcher runs Tick on a cron schedule.
type Watcher struct {
	cfg    Config
	svc    *staking.Service
	source BalanceSource
	logger *zap.Logger

	mu   sync.Mutex
	last time.Time
}

// New builds a Watcher. source may be nil when cfg.RewardToken is zero.
func New(cfg Config, svc *staking.Service, source BalanceSource, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 25 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		svc:    svc,
		source: source,
		logger: logger,
	}
}

// Run blocks until ctx is done, ticking on the configured schedule.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	if w.mirroring() && w.source == nil {
		return fmt.Errorf("balance source is nil")
	}

	logger := cronLogger{w.logger.Sugar()}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)))
	_, err := c.AddFunc(w.cfg.Schedule, func() {
		tctx, cancel := context.WithTimeout(ctx, w.cfg.TickTimeout)
		defer cancel()
		if err := w.Tick(tctx); err != nil {
			w.logger.Warn("tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", w.cfg.Schedule, err)
	}

	c.Start()
	w.logger.Info("watcher started", zap.String("schedule", w.cfg.Schedule), zap.Int("pools", len(w.cfg.Pools)))
	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("watcher stopped")
	return nil
}

// Tick mirrors and syncs every configured pool once. A failing pool does not
// stop the others.
func (w *Watcher) Tick(ctx context.Context) error {
	var errs []error
	for _, id := range w.cfg.Pools {
		if err := w.tickPool(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id.Hex(), err))
		}
	}
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
	return errors.Join(errs...)
}

// LastTick returns when Tick last completed.
func (w *Watcher) LastTick() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) tickPool(ctx context.Context, id common.Hash) error {
	pool, err := w.svc.Pool(ctx, id)
	if err != nil {
		return err
	}
	if w.mirroring() {
		if err := w.mirror(ctx, pool); err != nil {
			return fmt.Errorf("mirror reward vault: %w", err)
		}
	}
	rcpt, err := w.svc.SyncRewards(ctx, id)
	if err != nil {
		return err
	}
	w.logger.Debug("pool synced",
		zap.String("pool", id.Hex()),
		zap.Uint64("reward_balance", rcpt.Pool.LastRewardBalance),
		zap.String("accumulator", model.FormatUint256(rcpt.Pool.Accumulator)),
	)
	return nil
}

// mirror reads the on-chain vault balance and credits what the ledger has
// not accounted for yet. A reading below the mirrored total is logged and
// left alone.
func (w *Watcher) mirror(ctx context.Context, pool model.Pool) error {
	var bal *big.Int
	backoff := chain.Backoff{MaxRetries: w.cfg.MaxRetries, BaseDelay: w.cfg.RetryBackoff}
	err := chain.WithRetry(ctx, backoff, w.logger, "balanceOf", func(ctx context.Context) error {
		var err error
		bal, err = w.source.BalanceOf(ctx, w.cfg.RewardToken, pool.RewardVault)
		return err
	})
	if err != nil {
		return err
	}

	received, overflow := uint256.FromBig(bal)
	if overflow || bal.Sign() < 0 {
		return fmt.Errorf("on-chain balance %s: %w", bal, model.ErrArithmeticOverflow)
	}
	res, err := w.svc.MirrorRewardVault(ctx, pool.ID, received)
	if err != nil {
		return err
	}
	if received.Lt(res.Mirrored) {
		w.logger.Warn("on-chain reward balance below mirrored total",
			zap.String("pool", pool.ID.Hex()),
			zap.String("mirrored", res.Mirrored.Dec()),
			zap.String("on_chain", received.Dec()),
		)
	}
	return nil
}

func (w *Watcher) mirroring() bool {
	return w.cfg.RewardToken != (common.Address{})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
