// Package reward implements the reward-per-share accounting used by staking
// pools. Every function is pure: inputs are never mutated and results are
// returned as fresh values.
//
// The accumulator grows by delta*Precision/TotalStaked on each reward inflow.
// A position's pending reward is StakedAmount*Accumulator/Precision minus its
// reward debt, so settlement costs O(1) however many participants or past
// distributions exist.
package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakeScope/internal/model"
)

// Precision is the fixed-point scale of the accumulator.
const Precision uint64 = 1_000_000_000_000

var precision = uint256.NewInt(Precision)

// UpdateAccumulator folds the reward inflow observed since the last update into
// the accumulator. The returned pool always records currentBalance as its last
// reward balance. With nobody staked the inflow is left undistributed.
func UpdateAccumulator(pool model.Pool, currentBalance uint64) (model.Pool, error) {
	if currentBalance < pool.LastRewardBalance {
		return pool, fmt.Errorf("reward balance %d below last seen %d: %w",
			currentBalance, pool.LastRewardBalance, model.ErrUnderflow)
	}

	next := pool.Clone()
	delta := currentBalance - pool.LastRewardBalance
	next.LastRewardBalance = currentBalance
	if delta == 0 || next.TotalStaked.IsZero() {
		return next, nil
	}

	// delta < 2^64 and Precision < 2^40, the product cannot wrap 256 bits.
	inc := new(uint256.Int).Mul(uint256.NewInt(delta), precision)
	inc.Div(inc, next.TotalStaked)

	acc, err := add128(next.Accumulator, inc)
	if err != nil {
		return pool, fmt.Errorf("accumulator: %w", err)
	}
	next.Accumulator = acc
	return next, nil
}

// PendingReward returns the reward position has earned since it was last settled.
func PendingReward(position model.Position, pool model.Pool) (*uint256.Int, error) {
	earned := accrued(position.StakedAmount, pool.Accumulator)
	debt := position.RewardDebt
	if debt == nil {
		debt = new(uint256.Int)
	}
	if earned.Lt(debt) {
		return nil, fmt.Errorf("reward debt %s exceeds accrued %s for %s: %w",
			debt.ToBig(), earned.ToBig(), position.Participant.Hex(), model.ErrInconsistent)
	}
	return new(uint256.Int).Sub(earned, debt), nil
}

// RewardDebt is the debt baseline for stakedAmount at the given accumulator.
func RewardDebt(stakedAmount uint64, accumulator *uint256.Int) (*uint256.Int, error) {
	debt := accrued(stakedAmount, accumulator)
	if !fits128(debt) {
		return nil, fmt.Errorf("reward debt: %w", model.ErrArithmeticOverflow)
	}
	return debt, nil
}

func accrued(stakedAmount uint64, accumulator *uint256.Int) *uint256.Int {
	out := new(uint256.Int)
	if accumulator == nil || stakedAmount == 0 {
		return out
	}
	// stakedAmount < 2^64 and accumulator < 2^128, the product fits in 2^192.
	out.Mul(uint256.NewInt(stakedAmount), accumulator)
	return out.Div(out, precision)
}
