// Package metrics holds the Prometheus collectors exported by the bootstrap service.
//
// All methods are safe on a nil *Metrics so components can be built without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walletboot"

// Metrics groups the collectors.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
	state    *prometheus.GaugeVec
	backend  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	balance  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg yields unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_attempts_total",
			Help:      "Bootstrap attempts by terminal state.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bootstrap_attempt_duration_seconds",
			Help:      "Duration of bootstrap attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bootstrap_state",
			Help:      "Current bootstrap state, 1 for the active state and 0 otherwise.",
		}, []string{"state"}),
		backend: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Requests to the remote backend by operation and result.",
		}, []string{"op", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of requests to the remote backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		balance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_balance_wei",
			Help:      "Last observed balance of the bootstrapped address.",
		}, []string{"net"}),
	}
}

// Attempt records a finished attempt.
func (m *Metrics) Attempt(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// State marks current as the active state among all.
func (m *Metrics) State(current string, all []string) {
	if m == nil {
		return
	}

	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}

		m.state.WithLabelValues(s).Set(v)
	}
}

// Backend records a backend request. Its signature matches backend.Observer.
func (m *Metrics) Backend(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.backend.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Balance sets the last observed balance on net.
func (m *Metrics) Balance(net string, wei float64) {
	if m == nil {
		return
	}

	m.balance.WithLabelValues(net).Set(wei)
}

// ResetBalance drops the balance series, used when the watched address is released.
func (m *Metrics) ResetBalance() {
	if m == nil {
		return
	}

	m.balance.Reset()
}
