package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/custody"
	"stakeScope/internal/model"
)

// Tx is a unit of work against pool, position and custody state. Writes made
// through a Tx become visible only if the enclosing Update succeeds.
type Tx interface {
	Pool(ctx context.Context, id common.Hash) (model.Pool, bool, error)
	// InsertPool stores a new pool and fails with model.ErrPoolExists when
	// the id is taken, including by a concurrent transaction.
	InsertPool(ctx context.Context, pool model.Pool) error
	// PutPool overwrites an existing pool; a missing pool is
	// model.ErrPoolNotFound.
	PutPool(ctx context.Context, pool model.Pool) error
	Position(ctx context.Context, pool common.Hash, participant common.Address) (model.Position, bool, error)
	PutPosition(ctx context.Context, position model.Position) error
	Custody() custody.Ledger
}

// Store runs units of work. Update commits when fn returns nil and discards
// every write otherwise; concurrent updates touching the same records are
// serialized.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// EventSink receives the journal of committed operations.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.Event) error
}

// MultiSink fans events out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) PutEvents(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
