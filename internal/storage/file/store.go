// Package file persists the in-memory store as a JSON lines change log. Each
// committed update appends the records it wrote; Open replays the log and
// rewrites it as a single snapshot line once it has grown past CompactAfter
// entries.
package file

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/memory"
)

// CompactAfter is the number of log entries Open tolerates before it
// rewrites the file.
const CompactAfter = 256

// stateRecord is one log entry: a full snapshot after compaction, otherwise
// the records of one commit.
type stateRecord struct {
	Pools     []model.PoolRecord     `json:"pools,omitempty"`
	Positions []model.PositionRecord `json:"positions,omitempty"`
	Accounts  []model.Account        `json:"accounts,omitempty"`
	UpdatedAt string                 `json:"updated_at"`
}

// Store is a memory.Store backed by a change log at Path.
type Store struct {
	*memory.Store
	Path string
	log  *storage.LineWriter
}

// Open loads the log at path, if any, and returns a store that appends to it
// on every commit.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	snap, entries, torn, err := load(path)
	if err != nil {
		return nil, err
	}
	if torn || entries > CompactAfter {
		if err := compact(path, snap); err != nil {
			return nil, err
		}
	}

	s := &Store{Path: path, log: storage.NewLineWriter(path, true)}
	s.Store = memory.NewWithHook(snap, func(changes memory.Snapshot) error {
		return s.log.Append(recordOf(changes))
	})
	return s, nil
}

func (s *Store) Close() error {
	return s.log.Close()
}

// load replays every entry of the log. A torn final entry, left by a write
// that never returned, is dropped and reported so Open can rewrite the file.
func load(path string) (snap memory.Snapshot, entries int, torn bool, err error) {
	snap = memory.NewSnapshot()

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, 0, false, nil
		}
		return snap, 0, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return snap, 0, false, fmt.Errorf("state path is a directory")
	}

	file, err := os.Open(path)
	if err != nil {
		return snap, 0, false, fmt.Errorf("read state: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(bufio.NewReader(file))
	for {
		var rec stateRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return snap, entries, false, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return snap, entries, true, nil
		}
		if err != nil {
			return snap, entries, false, fmt.Errorf("parse state entry %d: %w", entries+1, err)
		}
		if err := apply(snap, rec); err != nil {
			return snap, entries, false, fmt.Errorf("state entry %d: %w", entries+1, err)
		}
		entries++
	}
}

func apply(snap memory.Snapshot, rec stateRecord) error {
	for _, pr := range rec.Pools {
		pool, err := pr.Pool()
		if err != nil {
			return fmt.Errorf("parse pool %s: %w", pr.ID, err)
		}
		snap.Pools[pool.ID] = pool
	}
	for _, pr := range rec.Positions {
		pos, err := pr.Position()
		if err != nil {
			return fmt.Errorf("parse position %s/%s: %w", pr.Pool, pr.Participant, err)
		}
		snap.Positions[derive.PositionID(pos.Pool, pos.Participant)] = pos
	}
	for _, acct := range rec.Accounts {
		snap.Accounts[acct.Ref] = acct
	}
	return nil
}

// compact replaces the log with one entry holding snap.
func compact(path string, snap memory.Snapshot) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(recordOf(snap))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

func recordOf(snap memory.Snapshot) stateRecord {
	rec := stateRecord{
		Pools:     make([]model.PoolRecord, 0, len(snap.Pools)),
		Positions: make([]model.PositionRecord, 0, len(snap.Positions)),
		Accounts:  make([]model.Account, 0, len(snap.Accounts)),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, id := range sortedHashes(snap.Pools) {
		rec.Pools = append(rec.Pools, snap.Pools[id].Record())
	}
	for _, id := range sortedHashes(snap.Positions) {
		rec.Positions = append(rec.Positions, snap.Positions[id].Record())
	}
	for _, ref := range sortedAddresses(snap.Accounts) {
		rec.Accounts = append(rec.Accounts, snap.Accounts[ref])
	}
	return rec
}

func sortedHashes[V any](m map[common.Hash]V) []common.Hash {
	keys := make([]common.Hash, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b common.Hash) int { return a.Cmp(b) })
	return keys
}

func sortedAddresses[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b common.Address) int { return a.Cmp(b) })
	return keys
}
