package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"stakeScope/internal/custody"
	"stakeScope/internal/model"
)

var errReadOnly = errors.New("read-only transaction")

type tx struct {
	tx       pgx.Tx
	writable bool
	ledger   *ledger
}

func newTx(t pgx.Tx, writable bool) *tx {
	return &tx{tx: t, writable: writable, ledger: &ledger{tx: t, writable: writable}}
}

// lock appends FOR UPDATE inside writable transactions.
func (t *tx) lock(query string) string {
	if t.writable {
		return query + " FOR UPDATE"
	}
	return query
}

func (t *tx) Pool(ctx context.Context, id common.Hash) (model.Pool, bool, error) {
	var (
		rec                        model.PoolRecord
		lastBalance, stakeCap      string
		createdEpoch, updatedEpoch int64
	)
	row := t.tx.QueryRow(ctx, t.lock(`
		SELECT id, authority, stake_asset, reward_asset, stake_vault, reward_vault,
			total_staked::text, accumulator::text, last_reward_balance::text, stake_cap::text,
			reward_paid::text, created_ts, updated_ts, created_epoch, updated_epoch
		FROM stake_pools WHERE id=$1`), id.Hex())
	err := row.Scan(
		&rec.ID, &rec.Authority, &rec.StakeAsset, &rec.RewardAsset, &rec.StakeVault, &rec.RewardVault,
		&rec.TotalStaked, &rec.Accumulator, &lastBalance, &stakeCap,
		&rec.RewardPaid, &rec.CreatedAt, &rec.UpdatedAt, &createdEpoch, &updatedEpoch,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}
	if rec.LastRewardBalance, err = parseUint("last_reward_balance", lastBalance); err != nil {
		return model.Pool{}, false, err
	}
	if rec.StakeCap, err = parseUint("stake_cap", stakeCap); err != nil {
		return model.Pool{}, false, err
	}
	rec.CreatedEpoch = uint64(createdEpoch)
	rec.UpdatedEpoch = uint64(updatedEpoch)

	pool, err := rec.Pool()
	if err != nil {
		return model.Pool{}, false, fmt.Errorf("pool %s: %w", rec.ID, err)
	}
	return pool, true, nil
}

// InsertPool relies on the primary key: a concurrent insert of the same id
// waits for the first to commit and then inserts nothing.
func (t *tx) InsertPool(ctx context.Context, pool model.Pool) error {
	if !t.writable {
		return errReadOnly
	}
	rec := pool.Record()
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO stake_pools (
			id, authority, stake_asset, reward_asset, stake_vault, reward_vault,
			total_staked, accumulator, last_reward_balance, stake_cap, reward_paid,
			created_ts, updated_ts, created_epoch, updated_epoch, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15, now())
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		rec.Authority,
		rec.StakeAsset,
		rec.RewardAsset,
		rec.StakeVault,
		rec.RewardVault,
		rec.TotalStaked,
		rec.Accumulator,
		formatUint(rec.LastRewardBalance),
		formatUint(rec.StakeCap),
		rec.RewardPaid,
		rec.CreatedAt,
		rec.UpdatedAt,
		int64(rec.CreatedEpoch),
		int64(rec.UpdatedEpoch),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: %w", rec.ID, model.ErrPoolExists)
	}
	return nil
}

func (t *tx) PutPool(ctx context.Context, pool model.Pool) error {
	if !t.writable {
		return errReadOnly
	}
	rec := pool.Record()
	tag, err := t.tx.Exec(ctx, `
		UPDATE stake_pools SET
			total_staked = $2::numeric,
			accumulator = $3::numeric,
			last_reward_balance = $4::numeric,
			reward_paid = $5::numeric,
			updated_ts = $6,
			updated_epoch = $7,
			updated_at = now()
		WHERE id = $1
	`,
		rec.ID,
		rec.TotalStaked,
		rec.Accumulator,
		formatUint(rec.LastRewardBalance),
		rec.RewardPaid,
		rec.UpdatedAt,
		int64(rec.UpdatedEpoch),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: %w", rec.ID, model.ErrPoolNotFound)
	}
	return nil
}

func (t *tx) Position(ctx context.Context, pool common.Hash, participant common.Address) (model.Position, bool, error) {
	var (
		rec    model.PositionRecord
		staked string
	)
	row := t.tx.QueryRow(ctx, t.lock(`
		SELECT pool_id, participant, stake_asset, staked_amount::text, reward_debt::text, last_activity
		FROM stake_positions WHERE pool_id=$1 AND participant=$2`), pool.Hex(), participant.Hex())
	err := row.Scan(&rec.Pool, &rec.Participant, &rec.StakeAsset, &staked, &rec.RewardDebt, &rec.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, err
	}
	if rec.StakedAmount, err = parseUint("staked_amount", staked); err != nil {
		return model.Position{}, false, err
	}
	pos, err := rec.Position()
	if err != nil {
		return model.Position{}, false, fmt.Errorf("position %s/%s: %w", rec.Pool, rec.Participant, err)
	}
	return pos, true, nil
}

func (t *tx) PutPosition(ctx context.Context, position model.Position) error {
	if !t.writable {
		return errReadOnly
	}
	rec := position.Record()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stake_positions (
			pool_id, participant, stake_asset, staked_amount, reward_debt, last_activity, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, now())
		ON CONFLICT (pool_id, participant)
		DO UPDATE SET
			staked_amount = EXCLUDED.staked_amount,
			reward_debt = EXCLUDED.reward_debt,
			last_activity = EXCLUDED.last_activity,
			updated_at = now()
	`,
		rec.Pool,
		rec.Participant,
		rec.StakeAsset,
		formatUint(rec.StakedAmount),
		rec.RewardDebt,
		rec.LastActivity,
	)
	return err
}

func (t *tx) Custody() custody.Ledger {
	return t.ledger
}

// ledger keeps custody balances in custody_accounts within the enclosing
// transaction.
type ledger struct {
	tx       pgx.Tx
	writable bool
}

func (l *ledger) Account(ctx context.Context, ref common.Address) (model.Account, error) {
	query := `SELECT asset, balance::text FROM custody_accounts WHERE ref=$1`
	if l.writable {
		query += " FOR UPDATE"
	}
	var asset, balance string
	if err := l.tx.QueryRow(ctx, query, ref.Hex()).Scan(&asset, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("%s: %w", ref.Hex(), model.ErrAccountNotFound)
		}
		return model.Account{}, err
	}
	amount, err := parseUint("balance", balance)
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{Ref: ref, Asset: common.HexToAddress(asset), Balance: amount}, nil
}

func (l *ledger) Open(ctx context.Context, ref, asset common.Address) (model.Account, error) {
	if !l.writable {
		return model.Account{}, errReadOnly
	}
	_, err := l.tx.Exec(ctx, `
		INSERT INTO custody_accounts (ref, asset, balance, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (ref) DO NOTHING
	`, ref.Hex(), asset.Hex())
	if err != nil {
		return model.Account{}, err
	}
	acct, err := l.Account(ctx, ref)
	if err != nil {
		return model.Account{}, err
	}
	if acct.Asset != asset {
		return model.Account{}, fmt.Errorf("open %s for %s, holds %s: %w",
			ref.Hex(), asset.Hex(), acct.Asset.Hex(), model.ErrAssetMismatch)
	}
	return acct, nil
}

func (l *ledger) Transfer(ctx context.Context, t custody.Transfer) error {
	if !l.writable {
		return errReadOnly
	}
	from, to, err := custody.CheckTransfer(t, func(ref common.Address) (model.Account, error) {
		return l.Account(ctx, ref)
	})
	if err != nil {
		return err
	}
	if err := l.setBalance(ctx, from); err != nil {
		return err
	}
	return l.setBalance(ctx, to)
}

func (l *ledger) Credit(ctx context.Context, ref, asset common.Address, amount uint64) error {
	acct, err := l.Open(ctx, ref, asset)
	if err != nil {
		return err
	}
	balance := acct.Balance + amount
	if balance < acct.Balance {
		return fmt.Errorf("credit %s: %w", ref.Hex(), model.ErrArithmeticOverflow)
	}
	acct.Balance = balance
	return l.setBalance(ctx, acct)
}

func (l *ledger) setBalance(ctx context.Context, acct model.Account) error {
	_, err := l.tx.Exec(ctx, `
		UPDATE custody_accounts SET balance=$2::numeric, updated_at=now() WHERE ref=$1
	`, acct.Ref.Hex(), formatUint(acct.Balance))
	return err
}
