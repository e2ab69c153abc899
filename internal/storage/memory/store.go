// Package memory keeps pool, position and custody state in process. An Update
// records its writes in a private overlay that is merged into the live state
// only on success, so its cost follows the records it touches.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/custody"
	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// Snapshot is a set of pools, positions and accounts: the complete state of a
// Store, or the records written by one update.
type Snapshot struct {
	Pools     map[common.Hash]model.Pool
	Positions map[common.Hash]model.Position
	Accounts  map[common.Address]model.Account
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{
		Pools:     make(map[common.Hash]model.Pool),
		Positions: make(map[common.Hash]model.Position),
		Accounts:  make(map[common.Address]model.Account),
	}
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Pools:     make(map[common.Hash]model.Pool, len(s.Pools)),
		Positions: make(map[common.Hash]model.Position, len(s.Positions)),
		Accounts:  make(map[common.Address]model.Account, len(s.Accounts)),
	}
	out.Merge(s)
	return out
}

// Merge copies every record of other into s, replacing records with the same
// key.
func (s Snapshot) Merge(other Snapshot) {
	for k, v := range other.Pools {
		s.Pools[k] = v.Clone()
	}
	for k, v := range other.Positions {
		s.Positions[k] = v.Clone()
	}
	for k, v := range other.Accounts {
		s.Accounts[k] = v
	}
}

// Len is the number of records in s.
func (s Snapshot) Len() int {
	return len(s.Pools) + len(s.Positions) + len(s.Accounts)
}

// CommitHook runs with the records an update wrote before they are merged.
// An error aborts the update.
type CommitHook func(changes Snapshot) error

// Store is an in-memory storage.Store. A single lock serializes updates;
// views share a read lock.
type Store struct {
	mu     sync.RWMutex
	state  Snapshot
	commit CommitHook
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: NewSnapshot()}
}

// NewWithHook starts from snap and calls hook on every commit.
func NewWithHook(snap Snapshot, hook CommitHook) *Store {
	if snap.Pools == nil || snap.Positions == nil || snap.Accounts == nil {
		snap = mergeEmpty(snap)
	}
	return &Store{state: snap, commit: hook}
}

func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s.state, true)
	if err := fn(t); err != nil {
		return err
	}
	if t.changes.Len() == 0 {
		return nil
	}
	if s.commit != nil {
		if err := s.commit(t.changes); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.state.Merge(t.changes)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(newTx(s.state, false))
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Close() error {
	return nil
}

// tx reads through changes to base. base is never written.
type tx struct {
	base     Snapshot
	changes  Snapshot
	writable bool
	ledger   custody.Ledger
}

func newTx(base Snapshot, writable bool) *tx {
	t := &tx{base: base, changes: NewSnapshot(), writable: writable}
	ledger := custody.NewOverlayLedger(base.Accounts, t.changes.Accounts)
	if writable {
		t.ledger = ledger
	} else {
		t.ledger = readOnlyLedger{ledger}
	}
	return t
}

func (t *tx) pool(id common.Hash) (model.Pool, bool) {
	if pool, ok := t.changes.Pools[id]; ok {
		return pool, true
	}
	pool, ok := t.base.Pools[id]
	return pool, ok
}

func (t *tx) Pool(_ context.Context, id common.Hash) (model.Pool, bool, error) {
	pool, ok := t.pool(id)
	if !ok {
		return model.Pool{}, false, nil
	}
	return pool.Clone(), true, nil
}

func (t *tx) InsertPool(_ context.Context, pool model.Pool) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.pool(pool.ID); ok {
		return fmt.Errorf("pool %s: %w", pool.ID.Hex(), model.ErrPoolExists)
	}
	t.changes.Pools[pool.ID] = pool.Clone()
	return nil
}

func (t *tx) PutPool(_ context.Context, pool model.Pool) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.pool(pool.ID); !ok {
		return fmt.Errorf("pool %s: %w", pool.ID.Hex(), model.ErrPoolNotFound)
	}
	t.changes.Pools[pool.ID] = pool.Clone()
	return nil
}

func (t *tx) Position(_ context.Context, pool common.Hash, participant common.Address) (model.Position, bool, error) {
	key := derive.PositionID(pool, participant)
	pos, ok := t.changes.Positions[key]
	if !ok {
		pos, ok = t.base.Positions[key]
	}
	if !ok {
		return model.Position{}, false, nil
	}
	return pos.Clone(), true, nil
}

func (t *tx) PutPosition(_ context.Context, position model.Position) error {
	if !t.writable {
		return errReadOnly
	}
	t.changes.Positions[derive.PositionID(position.Pool, position.Participant)] = position.Clone()
	return nil
}

func (t *tx) Custody() custody.Ledger {
	return t.ledger
}

func mergeEmpty(snap Snapshot) Snapshot {
	out := NewSnapshot()
	for k, v := range snap.Pools {
		out.Pools[k] = v
	}
	for k, v := range snap.Positions {
		out.Positions[k] = v
	}
	for k, v := range snap.Accounts {
		out.Accounts[k] = v
	}
	return out
}
