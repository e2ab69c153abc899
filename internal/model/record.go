package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolRecord is the serialized form of Pool. Wide integers are decimal strings.
type PoolRecord struct {
	ID                string `json:"id"`
	Authority         string `json:"authority"`
	StakeAsset        string `json:"stake_asset"`
	RewardAsset       string `json:"reward_asset"`
	StakeVault        string `json:"stake_vault"`
	RewardVault       string `json:"reward_vault"`
	TotalStaked       string `json:"total_staked"`
	Accumulator       string `json:"accumulator"`
	LastRewardBalance uint64 `json:"last_reward_balance"`
	StakeCap          uint64 `json:"stake_cap"`
	RewardPaid        string `json:"reward_paid"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
	CreatedEpoch      uint64 `json:"created_epoch"`
	UpdatedEpoch      uint64 `json:"updated_epoch"`
}

// PositionRecord is the serialized form of Position.
type PositionRecord struct {
	Pool         string `json:"pool"`
	Participant  string `json:"participant"`
	StakeAsset   string `json:"stake_asset"`
	StakedAmount uint64 `json:"staked_amount"`
	RewardDebt   string `json:"reward_debt"`
	LastActivity int64  `json:"last_activity"`
}

// Record converts the pool to its serialized form.
func (p Pool) Record() PoolRecord {
	return PoolRecord{
		ID:                p.ID.Hex(),
		Authority:         p.Authority.Hex(),
		StakeAsset:        p.StakeAsset.Hex(),
		RewardAsset:       p.RewardAsset.Hex(),
		StakeVault:        p.StakeVault.Hex(),
		RewardVault:       p.RewardVault.Hex(),
		TotalStaked:       FormatUint256(p.TotalStaked),
		Accumulator:       FormatUint256(p.Accumulator),
		LastRewardBalance: p.LastRewardBalance,
		StakeCap:          p.StakeCap,
		RewardPaid:        FormatUint256(p.RewardPaid),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		CreatedEpoch:      p.CreatedEpoch,
		UpdatedEpoch:      p.UpdatedEpoch,
	}
}

// Pool converts the record back to a Pool.
func (r PoolRecord) Pool() (Pool, error) {
	total, err := ParseUint256(r.TotalStaked)
	if err != nil {
		return Pool{}, fmt.Errorf("total staked: %w", err)
	}
	acc, err := ParseUint256(r.Accumulator)
	if err != nil {
		return Pool{}, fmt.Errorf("accumulator: %w", err)
	}
	paid, err := ParseUint256(r.RewardPaid)
	if err != nil {
		return Pool{}, fmt.Errorf("reward paid: %w", err)
	}
	return Pool{
		ID:                common.HexToHash(r.ID),
		Authority:         common.HexToAddress(r.Authority),
		StakeAsset:        common.HexToAddress(r.StakeAsset),
		RewardAsset:       common.HexToAddress(r.RewardAsset),
		StakeVault:        common.HexToAddress(r.StakeVault),
		RewardVault:       common.HexToAddress(r.RewardVault),
		TotalStaked:       total,
		Accumulator:       acc,
		LastRewardBalance: r.LastRewardBalance,
		StakeCap:          r.StakeCap,
		RewardPaid:        paid,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		CreatedEpoch:      r.CreatedEpoch,
		UpdatedEpoch:      r.UpdatedEpoch,
	}, nil
}

// Record converts the position to its serialized form.
func (p Position) Record() PositionRecord {
	return PositionRecord{
		Pool:         p.Pool.Hex(),
		Participant:  p.Participant.Hex(),
		StakeAsset:   p.StakeAsset.Hex(),
		StakedAmount: p.StakedAmount,
		RewardDebt:   FormatUint256(p.RewardDebt),
		LastActivity: p.LastActivity,
	}
}

// Position converts the record back to a Position.
func (r PositionRecord) Position() (Position, error) {
	debt, err := ParseUint256(r.RewardDebt)
	if err != nil {
		return Position{}, fmt.Errorf("reward debt: %w", err)
	}
	return Position{
		Pool:         common.HexToHash(r.Pool),
		Participant:  common.HexToAddress(r.Participant),
		StakeAsset:   common.HexToAddress(r.StakeAsset),
		StakedAmount: r.StakedAmount,
		RewardDebt:   debt,
		LastActivity: r.LastActivity,
	}, nil
}

// FormatUint256 renders v in base 10; nil renders as "0".
func FormatUint256(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

// ParseUint256 parses a base 10 string. The empty string parses as zero.
func ParseUint256(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid uint: %s", value)
	}
	out, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("uint overflows 256 bits: %s", value)
	}
	return out, nil
}
