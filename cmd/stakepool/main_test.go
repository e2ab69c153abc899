package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stakeScope/internal/custody"
	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/staking"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = newLogger("loud")
	require.Error(t, err)
}

type fixedTicks time.Time

func (f fixedTicks) LastTick() time.Time { return time.Time(f) }

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	cases := []struct {
		name   string
		ticks  fixedTicks
		path   string
		status int
	}{
		{"healthz", fixedTicks{}, "/healthz", http.StatusOK},
		{"readyz before first tick", fixedTicks{}, "/readyz", http.StatusServiceUnavailable},
		{"readyz after tick", fixedTicks(time.Unix(1_700_000_000, 0)), "/readyz", http.StatusOK},
		{"metrics", fixedTicks{}, "/metrics", http.StatusOK},
		{"unknown", fixedTicks{}, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(reg, tc.ticks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.path == "/metrics" {
				assert.Contains(t, rec.Body.String(), "router_test_total 1")
			}
		})
	}
}

func TestReceiptView(t *testing.T) {
	pool := model.Pool{
		ID:          common.HexToHash("0x01"),
		TotalStaked: uint256.NewInt(100),
		Accumulator: uint256.NewInt(5_000_000_000_000),
	}
	pos := model.Position{
		Pool:         pool.ID,
		Participant:  common.HexToAddress("0xa1"),
		StakedAmount: 100,
		RewardDebt:   uint256.NewInt(500),
	}
	view := newReceiptView(staking.Receipt{
		Pool:       pool,
		Position:   &pos,
		Amount:     100,
		RewardPaid: 5,
		Transfers: []custody.Transfer{
			{Asset: common.HexToAddress("0xbb"), From: common.HexToAddress("0x10"), To: common.HexToAddress("0x20"), Amount: 5},
		},
	})

	assert.Equal(t, "100", view.Pool.TotalStaked)
	require.NotNil(t, view.Position)
	assert.Equal(t, "500", view.Position.RewardDebt)
	require.Len(t, view.Transfers, 1)
	assert.Equal(t, common.HexToAddress("0x20").Hex(), view.Transfers[0].To)

	empty := newReceiptView(staking.Receipt{Pool: pool})
	assert.Nil(t, empty.Position)
	assert.NotNil(t, empty.Transfers)
}

func TestWalletFlag(t *testing.T) {
	owner := common.HexToAddress("0xa1")
	asset := common.HexToAddress("0xbb")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("stake-account", "", "")
	got, err := walletFlag(flags, "stake-account", owner, asset)
	require.NoError(t, err)
	assert.Equal(t, derive.Wallet(owner, asset), got)

	explicit := common.HexToAddress("0xcc")
	require.NoError(t, flags.Set("stake-account", explicit.Hex()))
	got, err = walletFlag(flags, "stake-account", owner, asset)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)

	require.NoError(t, flags.Set("stake-account", "not-an-address"))
	_, err = walletFlag(flags, "stake-account", owner, asset)
	assert.Error(t, err)
}

func TestAddressFlagRequired(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("creator", "", "")
	_, err := addressFlag(flags, "creator")
	assert.ErrorContains(t, err, "--creator is required")
}

func TestAddressesFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("participants", nil, "")

	got, err := addressesFlag(flags, "participants")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, flags.Parse([]string{"--participants", "0x00000000000000000000000000000000000000a1, ,0x00000000000000000000000000000000000000b2"}))
	got, err = addressesFlag(flags, "participants")
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0xa1"), common.HexToAddress("0xb2")}, got)

	require.NoError(t, flags.Set("participants", "nope"))
	_, err = addressesFlag(flags, "participants")
	assert.ErrorContains(t, err, "--participants")
}

var (
	cliCreator     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	cliStakeAsset  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	cliRewardAsset = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	cliAlice       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

// execute runs the root command against the state file in dir with the
// journal disabled and returns what it printed.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--state-file", filepath.Join(dir, "state.jsonl"), "--journal", ""))
	err := root.Execute()
	return out.String(), err
}

func createArgs(stakeCap uint64) []string {
	args := []string{"create",
		"--creator", cliCreator.Hex(),
		"--stake-asset", cliStakeAsset.Hex(),
		"--reward-asset", cliRewardAsset.Hex(),
	}
	if stakeCap > 0 {
		args = append(args, "--stake-cap", strconv.FormatUint(stakeCap, 10))
	}
	return args
}

func captureLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	prev := buildLogger
	buildLogger = func(string) (*zap.Logger, error) { return zap.New(core), nil }
	t.Cleanup(func() { buildLogger = prev })
	return logs
}

func TestCreateRequiresStakeCap(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, createArgs(0)...)
	require.ErrorContains(t, err, `required flag(s) "stake-cap" not set`)

	_, statErr := os.Stat(filepath.Join(dir, "state.jsonl"))
	assert.True(t, os.IsNotExist(statErr))

	usage := newCreateCmd().Flags().Lookup("stake-cap").Usage
	assert.Contains(t, usage, "0 blocks all deposits")
	assert.NotContains(t, usage, "uncapped")
}

func TestFailedCommandLoggedOnce(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()

	_, err := execute(t, dir, createArgs(100)...)
	require.NoError(t, err)
	_, err = execute(t, dir, createArgs(100)...)
	require.ErrorIs(t, err, model.ErrPoolExists)

	failed := logs.FilterMessage("operation failed").AllUntimed()
	require.Len(t, failed, 1)
	assert.Equal(t, zap.WarnLevel, failed[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestShowParticipants(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	poolID := derive.PoolID(cliCreator, cliStakeAsset).Hex()

	steps := [][]string{
		createArgs(1_000),
		{"credit", "--account", derive.Wallet(cliAlice, cliStakeAsset).Hex(), "--asset", cliStakeAsset.Hex(), "--amount", "100"},
		{"deposit", "--pool", poolID, "--participant", cliAlice.Hex(), "--amount", "60"},
		{"credit", "--pool", poolID, "--amount", "30"},
	}
	for _, args := range steps {
		_, err := execute(t, dir, args...)
		require.NoError(t, err, args[0])
	}

	out, err := execute(t, dir, "show", "--pool", poolID, "--participants", cliAlice.Hex())
	require.NoError(t, err)

	var view struct {
		Positions []struct {
			Position struct {
				Participant  string `json:"participant"`
				StakedAmount uint64 `json:"staked_amount"`
			} `json:"position"`
			PendingReward uint64 `json:"pending_reward"`
		} `json:"positions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Positions, 1)
	assert.Equal(t, cliAlice.Hex(), view.Positions[0].Position.Participant)
	assert.Equal(t, uint64(60), view.Positions[0].Position.StakedAmount)
	assert.Equal(t, uint64(30), view.Positions[0].PendingReward)

	out, err = execute(t, dir, "show", "--pool", poolID)
	require.NoError(t, err)
	assert.NotContains(t, out, `"positions"`)
}
