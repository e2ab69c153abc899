package staking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/clock"
	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/memory"
)

var (
	creator     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	stakeAsset  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	rewardAsset = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol       = common.HexToAddress("0x00000000000000000000000000000000000000b3")
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (r *recordingSink) PutEvents(_ context.Context, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return r.err
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *clock.Fixed
	sink  *recordingSink
	svc   *Service
	pool  model.Pool
}

func newFixture(t *testing.T, stakeCap uint64) *fixture {
	t.Helper()
	f := newBareFixture(t)
	rcpt, err := f.svc.CreatePool(f.ctx, CreatePoolRequest{
		Creator:     creator,
		StakeAsset:  stakeAsset,
		RewardAsset: rewardAsset,
		StakeCap:    stakeCap,
	})
	require.NoError(t, err)
	f.pool = rcpt.Pool
	return f
}

func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	return newBareFixtureOn(t, memory.New())
}

func newBareFixtureOn(t *testing.T, store *memory.Store) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		clock: &clock.Fixed{T: time.Unix(1_700_000_000, 0).UTC(), EpochLength: time.Hour},
		sink:  &recordingSink{},
	}
	f.svc = NewService(f.store, Options{Clock: f.clock, Sink: f.sink}, nil)
	return f
}

func stakeWallet(p common.Address) common.Address  { return derive.Wallet(p, stakeAsset) }
func rewardWallet(p common.Address) common.Address { return derive.Wallet(p, rewardAsset) }

// fund gives p stake units and an empty reward wallet.
func (f *fixture) fund(p common.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, f.svc.Credit(f.ctx, stakeWallet(p), stakeAsset, amount))
	require.NoError(f.t, f.store.Update(f.ctx, func(tx storage.Tx) error {
		_, err := tx.Custody().Open(f.ctx, rewardWallet(p), rewardAsset)
		return err
	}))
}

// reward simulates an external reward deposit into the pool's vault.
func (f *fixture) reward(amount uint64) {
	f.t.Helper()
	require.NoError(f.t, f.svc.Credit(f.ctx, f.pool.RewardVault, rewardAsset, amount))
}

func (f *fixture) stakeRequest(p common.Address, amount uint64) StakeRequest {
	return StakeRequest{
		Pool:          f.pool.ID,
		Participant:   p,
		StakeAccount:  stakeWallet(p),
		RewardAccount: rewardWallet(p),
		Amount:        amount,
	}
}

func (f *fixture) deposit(p common.Address, amount uint64) (Receipt, error) {
	return f.svc.DepositStake(f.ctx, f.stakeRequest(p, amount))
}

func (f *fixture) withdraw(p common.Address, amount uint64) (Receipt, error) {
	return f.svc.WithdrawStake(f.ctx, f.stakeRequest(p, amount))
}

func (f *fixture) claim(p common.Address) (Receipt, error) {
	return f.svc.ClaimReward(f.ctx, ClaimRequest{Pool: f.pool.ID, Participant: p, RewardAccount: rewardWallet(p)})
}

func (f *fixture) mustDeposit(p common.Address, amount uint64) Receipt {
	f.t.Helper()
	rcpt, err := f.deposit(p, amount)
	require.NoError(f.t, err)
	return rcpt
}

func (f *fixture) mustClaim(p common.Address) Receipt {
	f.t.Helper()
	rcpt, err := f.claim(p)
	require.NoError(f.t, err)
	return rcpt
}

func (f *fixture) balance(ref common.Address) uint64 {
	f.t.Helper()
	acct, err := f.svc.Account(f.ctx, ref)
	require.NoError(f.t, err)
	return acct.Balance
}

func (f *fixture) currentPool() model.Pool {
	f.t.Helper()
	pool, err := f.svc.Pool(f.ctx, f.pool.ID)
	require.NoError(f.t, err)
	return pool
}

func (f *fixture) position(p common.Address) model.Position {
	f.t.Helper()
	pos, err := f.svc.Position(f.ctx, f.pool.ID, p)
	require.NoError(f.t, err)
	return pos
}

// drain moves reward out of the vault behind the pool's back.
func (f *fixture) drain(amount uint64) {
	f.t.Helper()
	sinkRef := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	require.NoError(f.t, f.store.Update(f.ctx, func(tx storage.Tx) error {
		if _, err := tx.Custody().Open(f.ctx, sinkRef, rewardAsset); err != nil {
			return err
		}
		return tx.Custody().Transfer(f.ctx, custodyTransfer(rewardAsset, f.pool.RewardVault, sinkRef, amount))
	}))
}

var errSinkDown = errors.New("sink down")

// stakedOf returns the staked amount of p, zero before its first deposit.
func (f *fixture) stakedOf(p common.Address) uint64 {
	f.t.Helper()
	var staked uint64
	require.NoError(f.t, f.store.View(f.ctx, func(tx storage.Tx) error {
		pos, _, err := tx.Position(f.ctx, f.pool.ID, p)
		staked = pos.StakedAmount
		return err
	}))
	return staked
}
