package model

import "errors"

var (
	ErrStakeCapExceeded   = errors.New("stake cap exceeded")
	ErrInsufficientStake  = errors.New("insufficient stake to withdraw")
	ErrAssetMismatch      = errors.New("asset mismatch")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrUnderflow          = errors.New("arithmetic underflow")
	// ErrInconsistent reports a violated invariant; it indicates a bug, not bad input.
	ErrInconsistent = errors.New("inconsistent state")

	ErrPoolExists        = errors.New("pool already exists")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrAccountNotFound   = errors.New("custody account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)
