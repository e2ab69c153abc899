package memory

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/custody"
	"stakeScope/internal/model"
)

var errReadOnly = errors.New("read-only transaction")

type readOnlyLedger struct {
	custody.Ledger
}

func (readOnlyLedger) Open(context.Context, common.Address, common.Address) (model.Account, error) {
	return model.Account{}, errReadOnly
}

func (readOnlyLedger) Transfer(context.Context, custody.Transfer) error {
	return errReadOnly
}

func (readOnlyLedger) Credit(context.Context, common.Address, common.Address, uint64) error {
	return errReadOnly
}
