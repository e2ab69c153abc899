package custody

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
)

// MapLedger keeps balances in caller-owned maps. Reads go to writes first and
// fall back to base; every change lands in writes. It does no locking; the
// owning store serializes access.
type MapLedger struct {
	base   map[common.Address]model.Account
	writes map[common.Address]model.Account
}

// NewMapLedger reads and writes accounts directly.
func NewMapLedger(accounts map[common.Address]model.Account) *MapLedger {
	return &MapLedger{base: accounts, writes: accounts}
}

// NewOverlayLedger reads through writes to base and never modifies base.
func NewOverlayLedger(base, writes map[common.Address]model.Account) *MapLedger {
	return &MapLedger{base: base, writes: writes}
}

func (l *MapLedger) lookup(ref common.Address) (model.Account, bool) {
	if acct, ok := l.writes[ref]; ok {
		return acct, true
	}
	acct, ok := l.base[ref]
	return acct, ok
}

func (l *MapLedger) Account(_ context.Context, ref common.Address) (model.Account, error) {
	acct, ok := l.lookup(ref)
	if !ok {
		return model.Account{}, fmt.Errorf("%s: %w", ref.Hex(), model.ErrAccountNotFound)
	}
	return acct, nil
}

func (l *MapLedger) Open(_ context.Context, ref, asset common.Address) (model.Account, error) {
	if acct, ok := l.lookup(ref); ok {
		if acct.Asset != asset {
			return model.Account{}, fmt.Errorf("open %s for %s, holds %s: %w",
				ref.Hex(), asset.Hex(), acct.Asset.Hex(), model.ErrAssetMismatch)
		}
		return acct, nil
	}
	acct := model.Account{Ref: ref, Asset: asset}
	l.writes[ref] = acct
	return acct, nil
}

func (l *MapLedger) Transfer(ctx context.Context, t Transfer) error {
	from, to, err := CheckTransfer(t, func(ref common.Address) (model.Account, error) {
		return l.Account(ctx, ref)
	})
	if err != nil {
		return err
	}
	l.writes[from.Ref] = from
	l.writes[to.Ref] = to
	return nil
}

func (l *MapLedger) Credit(ctx context.Context, ref, asset common.Address, amount uint64) error {
	acct, err := l.Open(ctx, ref, asset)
	if err != nil {
		return err
	}
	balance := acct.Balance + amount
	if balance < acct.Balance {
		return fmt.Errorf("credit %s: %w", ref.Hex(), model.ErrArithmeticOverflow)
	}
	acct.Balance = balance
	l.writes[ref] = acct
	return nil
}

// CheckTransfer validates t against the current accounts and returns both
// accounts with their post-transfer balances. Nothing is written.
func CheckTransfer(t Transfer, lookup func(common.Address) (model.Account, error)) (model.Account, model.Account, error) {
	from, err := lookup(t.From)
	if err != nil {
		return model.Account{}, model.Account{}, fmt.Errorf("transfer source: %w", err)
	}
	to, err := lookup(t.To)
	if err != nil {
		return model.Account{}, model.Account{}, fmt.Errorf("transfer destination: %w", err)
	}
	if from.Asset != t.Asset || to.Asset != t.Asset {
		return model.Account{}, model.Account{}, fmt.Errorf("transfer %s from %s (%s) to %s (%s): %w",
			t.Asset.Hex(), from.Ref.Hex(), from.Asset.Hex(), to.Ref.Hex(), to.Asset.Hex(), model.ErrAssetMismatch)
	}
	if from.Balance < t.Amount {
		return model.Account{}, model.Account{}, fmt.Errorf("transfer %d from %s holding %d: %w",
			t.Amount, from.Ref.Hex(), from.Balance, model.ErrInsufficientFunds)
	}
	if from.Ref == to.Ref {
		return from, to, nil
	}
	credited := to.Balance + t.Amount
	if credited < to.Balance {
		return model.Account{}, model.Account{}, fmt.Errorf("transfer to %s: %w", to.Ref.Hex(), model.ErrArithmeticOverflow)
	}
	from.Balance -= t.Amount
	to.Balance = credited
	return from, to, nil
}
