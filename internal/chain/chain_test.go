package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubCaller struct {
	resp []byte
	err  error
	msg  ethereum.CallMsg
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.msg = msg
	return s.resp, s.err
}

func TestBalanceOf(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stub := &stubCaller{resp: math.U256Bytes(big.NewInt(1234))}

	bal, err := BalanceOf(context.Background(), stub, token, owner, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	require.NotNil(t, stub.msg.To)
	assert.Equal(t, token, *stub.msg.To)
	require.Len(t, stub.msg.Data, 4+32)
	assert.Equal(t, owner.Bytes(), stub.msg.Data[4+12:])
}

func TestBalanceOfCallError(t *testing.T) {
	stub := &stubCaller{err: errors.New("rpc down")}
	_, err := BalanceOf(context.Background(), stub, common.Address{}, common.Address{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call balanceOf")
}

func TestBalanceOfShortResponse(t *testing.T) {
	stub := &stubCaller{resp: []byte{0x01}}
	_, err := BalanceOf(context.Background(), stub, common.Address{}, common.Address{}, nil)
	require.Error(t, err)
}

func TestWithRetry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	calls := 0
	err := WithRetry(context.Background(), Backoff{MaxRetries: 3, BaseDelay: time.Millisecond}, zap.New(core), "balanceOf", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	warns := logs.FilterMessage("operation failed, retrying").AllUntimed()
	require.Len(t, warns, 2)
	assert.Equal(t, zap.WarnLevel, warns[0].Level)
	assert.Equal(t, "balanceOf", warns[0].ContextMap()["operation"])
	assert.Equal(t, int64(1), warns[0].ContextMap()["attempt"])
	assert.Equal(t, int64(2), warns[1].ContextMap()["attempt"])

	done := logs.FilterMessage("operation succeeded after retries").AllUntimed()
	require.Len(t, done, 1)
	assert.Equal(t, int64(3), done[0].ContextMap()["attempts"])
}

func TestWithRetryQuietOnFirstSuccess(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	err := WithRetry(context.Background(), Backoff{MaxRetries: 3}, zap.New(core), "balanceOf", func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestWithRetryGivesUp(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	calls := 0
	err := WithRetry(context.Background(), Backoff{MaxRetries: 2, BaseDelay: time.Millisecond}, zap.New(core), "balanceOf", func(context.Context) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balanceOf failed after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, logs.FilterMessage("operation failed, retrying").Len())
}

func TestWithRetryCapsDelay(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b := Backoff{MaxRetries: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	_ = WithRetry(context.Background(), b, zap.New(core), "balanceOf", func(context.Context) error {
		return errors.New("transient")
	})

	var delays []time.Duration
	for _, entry := range logs.FilterMessage("operation failed, retrying").AllUntimed() {
		delays = append(delays, entry.ContextMap()["retry_in"].(time.Duration))
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, Backoff{MaxRetries: 5, BaseDelay: time.Hour}, nil, "balanceOf", func(context.Context) error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
