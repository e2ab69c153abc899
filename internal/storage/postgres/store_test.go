package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

func TestParseUint(t *testing.T) {
	v, err := parseUint("balance", "18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)

	_, err = parseUint("balance", "18446744073709551616")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balance")
}

func TestLockOnlyInWritableTx(t *testing.T) {
	assert.Equal(t, "SELECT 1 FOR UPDATE", newTx(nil, true).lock("SELECT 1"))
	assert.Equal(t, "SELECT 1", newTx(nil, false).lock("SELECT 1"))
}

func TestNumericOrZero(t *testing.T) {
	assert.Equal(t, "0", numericOrZero(""))
	assert.Equal(t, "12", numericOrZero("12"))
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

// openTestStore connects to STAKEPOOL_TEST_PG_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STAKEPOOL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("STAKEPOOL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestConcurrentInsertPoolCreatesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := common.BytesToHash([]byte(uuid.NewString()))
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DELETE FROM stake_pools WHERE id=$1", id.Hex())
	})

	var (
		read sync.WaitGroup
		done sync.WaitGroup
		errs = make([]error, 2)
	)
	read.Add(2)
	done.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer done.Done()
			errs[i] = s.Update(ctx, func(tx storage.Tx) error {
				_, ok, err := tx.Pool(ctx, id)
				read.Done()
				if err != nil {
					return err
				}
				if ok {
					return errors.New("pool visible before insert")
				}
				read.Wait()
				return tx.InsertPool(ctx, model.Pool{ID: id, TotalStaked: new(uint256.Int), StakeCap: 10})
			})
		}(i)
	}
	done.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, model.ErrPoolExists)
	}
	assert.Equal(t, 1, created)

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		pool, ok, err := tx.Pool(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		pool.TotalStaked = uint256.NewInt(7)
		return tx.PutPool(ctx, pool)
	}))
	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.InsertPool(ctx, model.Pool{ID: id, TotalStaked: new(uint256.Int)})
	})
	require.ErrorIs(t, err, model.ErrPoolExists)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		pool, _, err := tx.Pool(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), pool.TotalStaked.Uint64())
		return nil
	}))
}

func TestPutPoolMissingPool(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutPool(ctx, model.Pool{ID: common.BytesToHash([]byte(uuid.NewString()))})
	})
	require.ErrorIs(t, err, model.ErrPoolNotFound)
}
