package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// MirrorResult reports one MirrorRewardVault call.
type MirrorResult struct {
	// Mirrored is the reward the ledger had already accounted for: the
	// vault balance plus everything the pool has paid out.
	Mirrored *uint256.Int
	Credited uint64
}

// MirrorRewardVault credits the pool's reward vault with whatever part of
// received the ledger has not seen yet. received is the total reward sent to
// the vault from outside; payouts are settled locally and never leave it.
// The comparison and the credit happen in one transaction, and the baseline
// is derived from committed state, so a restarted caller does not credit the
// same inflow twice.
func (s *Service) MirrorRewardVault(ctx context.Context, poolID common.Hash, received *uint256.Int) (MirrorResult, error) {
	started := time.Now()

	var (
		res  MirrorResult
		pool model.Pool
	)
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		if pool, err = loadPool(ctx, tx, poolID); err != nil {
			return err
		}
		vault, err := tx.Custody().Account(ctx, pool.RewardVault)
		if err != nil {
			return fmt.Errorf("load reward vault: %w", err)
		}

		res.Mirrored = uint256.NewInt(vault.Balance)
		if pool.RewardPaid != nil {
			res.Mirrored.Add(res.Mirrored, pool.RewardPaid)
		}
		if !received.Gt(res.Mirrored) {
			return nil
		}

		delta := new(uint256.Int).Sub(received, res.Mirrored)
		if !delta.IsUint64() {
			return fmt.Errorf("inflow %s: %w", delta.Dec(), model.ErrArithmeticOverflow)
		}
		res.Credited = delta.Uint64()
		return tx.Custody().Credit(ctx, pool.RewardVault, pool.RewardAsset, res.Credited)
	})
	if err != nil {
		s.metrics.Observe(string(model.EventCredit), started, err)
		s.logger.Warn("mirror reward vault failed", zap.String("pool", poolID.Hex()), zap.Error(err))
		return MirrorResult{}, err
	}
	if res.Credited == 0 {
		return res, nil
	}

	s.metrics.Observe(string(model.EventCredit), started, nil)
	s.logger.Info("reward vault credited",
		zap.String("pool", poolID.Hex()),
		zap.String("account", pool.RewardVault.Hex()),
		zap.Uint64("amount", res.Credited),
		zap.String("received", received.Dec()),
	)
	s.emit(ctx, model.Event{Kind: model.EventCredit, Pool: poolID.Hex(), Account: pool.RewardVault.Hex(), Amount: res.Credited})
	return res, nil
}
