package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// Store keeps pools, positions, custody accounts and the event journal in
// Postgres. Each Update runs in one database transaction.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Store     = (*Store)(nil)
	_ storage.EventSink = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Update locks every row it reads until fn returns, so concurrent updates of
// the same pool or account queue behind each other.
func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newTx(tx, true))
	})
}

// View reads from one snapshot, so values read by separate queries agree.
func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(newTx(tx, false))
	})
}

// PutEvents appends events to stake_events. Replayed ids are ignored.
func (s *Store) PutEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO stake_events (
				id, kind, pool_id, participant, account, amount, reward_paid,
				accumulator, total_staked, event_ts, created_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, now())
			ON CONFLICT (id) DO NOTHING
		`,
			ev.ID,
			string(ev.Kind),
			ev.Pool,
			ev.Participant,
			ev.Account,
			formatUint(ev.Amount),
			formatUint(ev.RewardPaid),
			numericOrZero(ev.Accumulator),
			numericOrZero(ev.TotalStaked),
			ev.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(column, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return v, nil
}

func numericOrZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
