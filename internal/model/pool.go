package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool is the aggregate state of one staking pool.
type Pool struct {
	ID          common.Hash
	Authority   common.Address
	StakeAsset  common.Address
	RewardAsset common.Address
	StakeVault  common.Address
	RewardVault common.Address

	// TotalStaked is the sum of StakedAmount over every position of the pool.
	TotalStaked *uint256.Int
	// Accumulator is the cumulative reward per unit of stake, scaled by reward.Precision.
	Accumulator *uint256.Int
	// LastRewardBalance is the reward vault balance as of the last accumulator update.
	LastRewardBalance uint64
	StakeCap          uint64
	// RewardPaid is the total paid out of the reward vault since creation.
	RewardPaid *uint256.Int

	CreatedAt    int64
	UpdatedAt    int64
	CreatedEpoch uint64
	UpdatedEpoch uint64
}

// Clone returns a deep copy; nil wide fields come back as zero.
func (p Pool) Clone() Pool {
	out := p
	out.TotalStaked = cloneInt(p.TotalStaked)
	out.Accumulator = cloneInt(p.Accumulator)
	out.RewardPaid = cloneInt(p.RewardPaid)
	return out
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
