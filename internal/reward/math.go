package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakeScope/internal/model"
)

var maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

func fits128(v *uint256.Int) bool {
	return v.Cmp(maxUint128) <= 0
}

func add128(x, y *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || !fits128(sum) {
		return nil, model.ErrArithmeticOverflow
	}
	return sum, nil
}

// AddStake adds amount to a 64-bit stake balance.
func AddStake(staked, amount uint64) (uint64, error) {
	sum := staked + amount
	if sum < staked {
		return 0, fmt.Errorf("stake %d + %d: %w", staked, amount, model.ErrArithmeticOverflow)
	}
	return sum, nil
}

// SubStake removes amount from a 64-bit stake balance.
func SubStake(staked, amount uint64) (uint64, error) {
	if amount > staked {
		return 0, fmt.Errorf("stake %d - %d: %w", staked, amount, model.ErrUnderflow)
	}
	return staked - amount, nil
}

// AddTotal adds amount to a pool total, keeping it within 128 bits.
func AddTotal(total *uint256.Int, amount uint64) (*uint256.Int, error) {
	sum, err := add128(orZero(total), uint256.NewInt(amount))
	if err != nil {
		return nil, fmt.Errorf("total staked: %w", err)
	}
	return sum, nil
}

// AddPaid adds a payout to a pool's running reward total.
func AddPaid(paid *uint256.Int, amount uint64) (*uint256.Int, error) {
	sum, err := add128(orZero(paid), uint256.NewInt(amount))
	if err != nil {
		return nil, fmt.Errorf("reward paid: %w", err)
	}
	return sum, nil
}

// SubTotal removes amount from a pool total.
func SubTotal(total *uint256.Int, amount uint64) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(orZero(total), uint256.NewInt(amount))
	if underflow {
		return nil, fmt.Errorf("total staked: %w", model.ErrUnderflow)
	}
	return out, nil
}

// WithinCap reports whether total+amount stays at or below stakeCap.
func WithinCap(total *uint256.Int, amount, stakeCap uint64) bool {
	// Both operands are below 2^129, no wrap in 256 bits.
	sum := new(uint256.Int).Add(orZero(total), uint256.NewInt(amount))
	return sum.Cmp(uint256.NewInt(stakeCap)) <= 0
}

// ToUint64 narrows a reward amount to a transferable 64-bit quantity.
func ToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %s: %w", v.ToBig(), model.ErrArithmeticOverflow)
	}
	return v.Uint64(), nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
