package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/custody"
	"stakeScope/internal/model"
	"stakeScope/internal/reward"
	"stakeScope/internal/storage"
)

// plan collects the outcome of one operation before anything is written.
// Pool and position values are updated in place on copies; transfers are
// queued and only run by apply.
type plan struct {
	pool       model.Pool
	transfers  []custody.Transfer
	rewardPaid uint64
}

func newPlan(pool model.Pool) *plan {
	return &plan{pool: pool.Clone()}
}

// sync measures the reward vault and folds any new inflow into the
// accumulator.
func (p *plan) sync(ctx context.Context, tx storage.Tx) error {
	vault, err := tx.Custody().Account(ctx, p.pool.RewardVault)
	if err != nil {
		return fmt.Errorf("reward vault: %w", err)
	}
	if vault.Asset != p.pool.RewardAsset {
		return fmt.Errorf("reward vault holds %s, pool rewards %s: %w",
			vault.Asset.Hex(), p.pool.RewardAsset.Hex(), model.ErrAssetMismatch)
	}
	next, err := reward.UpdateAccumulator(p.pool, vault.Balance)
	if err != nil {
		return fmt.Errorf("sync pool %s: %w", p.pool.ID.Hex(), err)
	}
	p.pool = next
	return nil
}

func (p *plan) pending(pos model.Position) (uint64, error) {
	pending, err := reward.PendingReward(pos, p.pool)
	if err != nil {
		return 0, err
	}
	return reward.ToUint64(pending)
}

// settle pays out the pending reward of pos to rewardAccount. The payout is
// deducted from LastRewardBalance so the next sync sees only new inflow.
func (p *plan) settle(ctx context.Context, tx storage.Tx, pos model.Position, rewardAccount common.Address) error {
	amount, err := p.pending(pos)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := p.checkAsset(ctx, tx, rewardAccount, p.pool.RewardAsset); err != nil {
		return fmt.Errorf("reward account: %w", err)
	}
	if amount > p.pool.LastRewardBalance {
		return fmt.Errorf("payout %d exceeds reward balance %d: %w",
			amount, p.pool.LastRewardBalance, model.ErrInconsistent)
	}
	paid, err := reward.AddPaid(p.pool.RewardPaid, amount)
	if err != nil {
		return err
	}
	p.pool.LastRewardBalance -= amount
	p.pool.RewardPaid = paid
	p.rewardPaid += amount
	p.transfers = append(p.transfers, custody.Transfer{
		Asset:  p.pool.RewardAsset,
		From:   p.pool.RewardVault,
		To:     rewardAccount,
		Amount: amount,
	})
	return nil
}

// checkAsset fails unless ref exists and holds asset.
func (p *plan) checkAsset(ctx context.Context, tx storage.Tx, ref, asset common.Address) error {
	acct, err := tx.Custody().Account(ctx, ref)
	if err != nil {
		return err
	}
	if acct.Asset != asset {
		return fmt.Errorf("%s holds %s, want %s: %w", ref.Hex(), acct.Asset.Hex(), asset.Hex(), model.ErrAssetMismatch)
	}
	return nil
}

// rebase sets the reward debt of pos against the planned accumulator.
func (p *plan) rebase(pos *model.Position) error {
	debt, err := reward.RewardDebt(pos.StakedAmount, p.pool.Accumulator)
	if err != nil {
		return err
	}
	pos.RewardDebt = debt
	return nil
}

// apply runs the queued transfers and writes pool and position. Any error
// leaves the enclosing transaction to be rolled back.
func (p *plan) apply(ctx context.Context, tx storage.Tx, pos *model.Position) error {
	for _, t := range p.transfers {
		if err := tx.Custody().Transfer(ctx, t); err != nil {
			return fmt.Errorf("transfer %d of %s: %w", t.Amount, t.Asset.Hex(), err)
		}
	}
	if err := tx.PutPool(ctx, p.pool); err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	if pos != nil {
		if err := tx.PutPosition(ctx, *pos); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
	}
	return nil
}

func custodyTransfer(asset, from, to common.Address, amount uint64) custody.Transfer {
	return custody.Transfer{Asset: asset, From: from, To: to, Amount: amount}
}
