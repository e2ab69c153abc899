// Package metrics exposes staking pool activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stakepool"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the collectors. Methods on a nil *Metrics do nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rewardsPaid   prometheus.Counter
	totalStaked   *prometheus.GaugeVec
	rewardBalance *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations by kind and result.",
		}, []string{"op", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in a pool operation including the store commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		rewardsPaid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_paid_total",
			Help:      "Reward units transferred to participants.",
		}),
		totalStaked: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_staked",
			Help:      "Stake units held by a pool after its last operation.",
		}, []string{"pool"}),
		rewardBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reward_balance",
			Help:      "Reward vault balance recorded at the last sync.",
		}, []string{"pool"}),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RewardPaid(amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.rewardsPaid.Add(float64(amount))
}

// PoolState records the pool gauges. Values above float64 precision are
// approximated.
func (m *Metrics) PoolState(pool string, totalStaked float64, rewardBalance uint64) {
	if m == nil {
		return
	}
	m.totalStaked.WithLabelValues(pool).Set(totalStaked)
	m.rewardBalance.WithLabelValues(pool).Set(float64(rewardBalance))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
