package postgres

import (
	"context"
	"fmt"
)

// Amounts are NUMERIC so the full uint64 and 128-bit ranges survive.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS stake_pools (
		id TEXT PRIMARY KEY,
		authority TEXT NOT NULL,
		stake_asset TEXT NOT NULL,
		reward_asset TEXT NOT NULL,
		stake_vault TEXT NOT NULL,
		reward_vault TEXT NOT NULL,
		total_staked NUMERIC(39, 0) NOT NULL DEFAULT 0,
		accumulator NUMERIC(39, 0) NOT NULL DEFAULT 0,
		last_reward_balance NUMERIC(20, 0) NOT NULL DEFAULT 0,
		stake_cap NUMERIC(20, 0) NOT NULL,
		reward_paid NUMERIC(39, 0) NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		created_epoch BIGINT NOT NULL,
		updated_epoch BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	ALTER TABLE stake_pools ADD COLUMN IF NOT EXISTS reward_paid NUMERIC(39, 0) NOT NULL DEFAULT 0;

	CREATE TABLE IF NOT EXISTS stake_positions (
		pool_id TEXT NOT NULL REFERENCES stake_pools (id),
		participant TEXT NOT NULL,
		stake_asset TEXT NOT NULL,
		staked_amount NUMERIC(20, 0) NOT NULL DEFAULT 0,
		reward_debt NUMERIC(39, 0) NOT NULL DEFAULT 0,
		last_activity BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool_id, participant)
	);

	CREATE TABLE IF NOT EXISTS custody_accounts (
		ref TEXT PRIMARY KEY,
		asset TEXT NOT NULL,
		balance NUMERIC(20, 0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS stake_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		pool_id TEXT NOT NULL DEFAULT '',
		participant TEXT NOT NULL DEFAULT '',
		account TEXT NOT NULL DEFAULT '',
		amount NUMERIC(20, 0) NOT NULL DEFAULT 0,
		reward_paid NUMERIC(20, 0) NOT NULL DEFAULT 0,
		accumulator NUMERIC(39, 0) NOT NULL DEFAULT 0,
		total_staked NUMERIC(39, 0) NOT NULL DEFAULT 0,
		event_ts BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS stake_events_pool_idx ON stake_events (pool_id, event_ts);
`

// EnsureSchema creates the tables used by Store if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
