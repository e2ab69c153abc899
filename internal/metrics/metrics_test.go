package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("deposit_stake", time.Now(), nil)
	m.Observe("deposit_stake", time.Now(), nil)
	m.Observe("deposit_stake", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit_stake", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit_stake", ResultError)))
}

func TestRewardPaidAndPoolState(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RewardPaid(40)
	m.RewardPaid(0)
	m.PoolState("0x01", 150, 90)

	assert.Equal(t, 40.0, testutil.ToFloat64(m.rewardsPaid))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.totalStaked.WithLabelValues("0x01")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.rewardBalance.WithLabelValues("0x01")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("sync_rewards", time.Now(), nil)
		m.RewardPaid(1)
		m.PoolState("0x01", 1, 1)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RewardPaid(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stakepool_rewards_paid_total 7"))
}
