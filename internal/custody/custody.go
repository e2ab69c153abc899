package custody

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
)

// Transfer moves Amount units of Asset from one custody account to another.
type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount uint64
}

// Custody is the token-movement collaborator. Transfer either applies in full
// or fails without touching any balance.
type Custody interface {
	Account(ctx context.Context, ref common.Address) (model.Account, error)
	// Open creates ref for asset. Opening an existing account for the same
	// asset returns it unchanged.
	Open(ctx context.Context, ref, asset common.Address) (model.Account, error)
	Transfer(ctx context.Context, t Transfer) error
}

// Ledger is a Custody that can also mint into an account, standing in for
// deposits made from outside the system.
type Ledger interface {
	Custody
	Credit(ctx context.Context, ref, asset common.Address, amount uint64) error
}
