package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is one participant's stake in one pool.
type Position struct {
	Pool         common.Hash
	Participant  common.Address
	StakeAsset   common.Address
	StakedAmount uint64
	// RewardDebt is StakedAmount * Accumulator / Precision as of the last settlement.
	RewardDebt   *uint256.Int
	LastActivity int64
}

// NewPosition returns an empty position of participant in pool.
func NewPosition(pool Pool, participant common.Address) Position {
	return Position{
		Pool:        pool.ID,
		Participant: participant,
		StakeAsset:  pool.StakeAsset,
		RewardDebt:  new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	out := p
	out.RewardDebt = cloneInt(p.RewardDebt)
	return out
}
