package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/reward"
	"stakeScope/internal/storage"
)

// CreatePool initializes the pool identified by (creator, stake asset). Reward
// already sitting in the reward vault is excluded from distribution.
func (s *Service) CreatePool(ctx context.Context, req CreatePoolRequest) (Receipt, error) {
	started := time.Now()
	id := derive.PoolID(req.Creator, req.StakeAsset)

	var rcpt Receipt
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		if _, ok, err := tx.Pool(ctx, id); err != nil {
			return fmt.Errorf("load pool %s: %w", id.Hex(), err)
		} else if ok {
			return fmt.Errorf("pool %s: %w", id.Hex(), model.ErrPoolExists)
		}

		now := s.clock.Now()
		epoch := s.clock.Epoch(now)
		pool := model.Pool{
			ID:           id,
			Authority:    derive.PoolAuthority(id),
			StakeAsset:   req.StakeAsset,
			RewardAsset:  req.RewardAsset,
			StakeVault:   derive.StakeVault(id),
			RewardVault:  derive.RewardVault(id),
			TotalStaked:  new(uint256.Int),
			Accumulator:  new(uint256.Int),
			RewardPaid:   new(uint256.Int),
			StakeCap:     req.StakeCap,
			CreatedAt:    now.Unix(),
			UpdatedAt:    now.Unix(),
			CreatedEpoch: epoch,
			UpdatedEpoch: epoch,
		}

		ledger := tx.Custody()
		if _, err := ledger.Open(ctx, pool.StakeVault, pool.StakeAsset); err != nil {
			return fmt.Errorf("open stake vault: %w", err)
		}
		vault, err := ledger.Open(ctx, pool.RewardVault, pool.RewardAsset)
		if err != nil {
			return fmt.Errorf("open reward vault: %w", err)
		}
		pool.LastRewardBalance = vault.Balance

		if err := tx.InsertPool(ctx, pool); err != nil {
			return fmt.Errorf("create pool %s: %w", id.Hex(), err)
		}
		rcpt = Receipt{Pool: pool}
		return nil
	})

	s.finish(ctx, model.EventCreatePool, started, rcpt, err,
		zap.String("pool", id.Hex()),
		zap.String("creator", req.Creator.Hex()),
		zap.Uint64("stake_cap", req.StakeCap),
	)
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// SyncRewards folds reward that reached the vault since the last sync into
// the accumulator. Calling it again without new inflow changes nothing.
func (s *Service) SyncRewards(ctx context.Context, poolID common.Hash) (Receipt, error) {
	started := time.Now()

	var rcpt Receipt
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		pool, err := loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		p := newPlan(pool)
		if err := p.sync(ctx, tx); err != nil {
			return err
		}
		if p.pool.LastRewardBalance != pool.LastRewardBalance {
			s.touch(&p.pool)
		}
		if err := p.apply(ctx, tx, nil); err != nil {
			return err
		}
		rcpt = Receipt{Pool: p.pool}
		return nil
	})

	s.finish(ctx, model.EventSync, started, rcpt, err, zap.String("pool", poolID.Hex()))
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// DepositStake settles the participant's pending reward and then moves
// req.Amount stake units into the pool. The position is created on first use.
func (s *Service) DepositStake(ctx context.Context, req StakeRequest) (Receipt, error) {
	started := time.Now()

	var rcpt Receipt
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		pool, err := loadPool(ctx, tx, req.Pool)
		if err != nil {
			return err
		}
		pos, ok, err := tx.Position(ctx, req.Pool, req.Participant)
		if err != nil {
			return fmt.Errorf("load position %s: %w", req.Participant.Hex(), err)
		}
		if !ok {
			pos = model.NewPosition(pool, req.Participant)
		}

		p := newPlan(pool)
		if err := p.sync(ctx, tx); err != nil {
			return err
		}
		if err := p.settle(ctx, tx, pos, req.RewardAccount); err != nil {
			return err
		}

		if !reward.WithinCap(p.pool.TotalStaked, req.Amount, p.pool.StakeCap) {
			return fmt.Errorf("deposit %d into %s staked of cap %d: %w",
				req.Amount, model.FormatUint256(p.pool.TotalStaked), p.pool.StakeCap, model.ErrStakeCapExceeded)
		}
		if err := p.checkAsset(ctx, tx, req.StakeAccount, p.pool.StakeAsset); err != nil {
			return fmt.Errorf("stake account: %w", err)
		}
		p.transfers = append(p.transfers, custodyTransfer(p.pool.StakeAsset, req.StakeAccount, p.pool.StakeVault, req.Amount))

		if pos.StakedAmount, err = reward.AddStake(pos.StakedAmount, req.Amount); err != nil {
			return err
		}
		if p.pool.TotalStaked, err = reward.AddTotal(p.pool.TotalStaked, req.Amount); err != nil {
			return err
		}
		if err := p.rebase(&pos); err != nil {
			return err
		}
		s.touch(&p.pool)
		pos.LastActivity = p.pool.UpdatedAt

		if err := p.apply(ctx, tx, &pos); err != nil {
			return err
		}
		rcpt = Receipt{Pool: p.pool, Position: &pos, Amount: req.Amount, RewardPaid: p.rewardPaid, Transfers: p.transfers}
		return nil
	})

	s.finish(ctx, model.EventDeposit, started, rcpt, err, stakeFields(req)...)
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// WithdrawStake settles the participant's pending reward and returns
// req.Amount stake units to req.StakeAccount.
func (s *Service) WithdrawStake(ctx context.Context, req StakeRequest) (Receipt, error) {
	started := time.Now()

	var rcpt Receipt
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		pool, err := loadPool(ctx, tx, req.Pool)
		if err != nil {
			return err
		}
		pos, err := loadPosition(ctx, tx, req.Pool, req.Participant)
		if err != nil {
			return err
		}
		if req.Amount > pos.StakedAmount {
			return fmt.Errorf("withdraw %d of %d staked: %w", req.Amount, pos.StakedAmount, model.ErrInsufficientStake)
		}

		p := newPlan(pool)
		if err := p.sync(ctx, tx); err != nil {
			return err
		}
		if err := p.settle(ctx, tx, pos, req.RewardAccount); err != nil {
			return err
		}

		if err := p.checkAsset(ctx, tx, req.StakeAccount, p.pool.StakeAsset); err != nil {
			return fmt.Errorf("stake account: %w", err)
		}
		p.transfers = append(p.transfers, custodyTransfer(p.pool.StakeAsset, p.pool.StakeVault, req.StakeAccount, req.Amount))

		if pos.StakedAmount, err = reward.SubStake(pos.StakedAmount, req.Amount); err != nil {
			return err
		}
		if p.pool.TotalStaked, err = reward.SubTotal(p.pool.TotalStaked, req.Amount); err != nil {
			return err
		}
		if err := p.rebase(&pos); err != nil {
			return err
		}
		s.touch(&p.pool)
		pos.LastActivity = p.pool.UpdatedAt

		if err := p.apply(ctx, tx, &pos); err != nil {
			return err
		}
		rcpt = Receipt{Pool: p.pool, Position: &pos, Amount: req.Amount, RewardPaid: p.rewardPaid, Transfers: p.transfers}
		return nil
	})

	s.finish(ctx, model.EventWithdraw, started, rcpt, err, stakeFields(req)...)
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// ClaimReward pays the participant's pending reward. Nothing pending is not
// an error.
func (s *Service) ClaimReward(ctx context.Context, req ClaimRequest) (Receipt, error) {
	started := time.Now()

	var rcpt Receipt
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		pool, err := loadPool(ctx, tx, req.Pool)
		if err != nil {
			return err
		}
		pos, err := loadPosition(ctx, tx, req.Pool, req.Participant)
		if err != nil {
			return err
		}

		p := newPlan(pool)
		if err := p.sync(ctx, tx); err != nil {
			return err
		}
		if err := p.settle(ctx, tx, pos, req.RewardAccount); err != nil {
			return err
		}
		if err := p.rebase(&pos); err != nil {
			return err
		}
		s.touch(&p.pool)
		pos.LastActivity = p.pool.UpdatedAt

		if err := p.apply(ctx, tx, &pos); err != nil {
			return err
		}
		rcpt = Receipt{Pool: p.pool, Position: &pos, RewardPaid: p.rewardPaid, Transfers: p.transfers}
		return nil
	})

	s.finish(ctx, model.EventClaim, started, rcpt, err,
		zap.String("pool", req.Pool.Hex()),
		zap.String("participant", req.Participant.Hex()),
	)
	if err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

func (s *Service) touch(pool *model.Pool) {
	now := s.clock.Now()
	pool.UpdatedAt = now.Unix()
	pool.UpdatedEpoch = s.clock.Epoch(now)
}

func stakeFields(req StakeRequest) []zap.Field {
	return []zap.Field{
		zap.String("pool", req.Pool.Hex()),
		zap.String("participant", req.Participant.Hex()),
		zap.Uint64("amount", req.Amount),
	}
}
