// Package metrics holds the Prometheus collectors for a player session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solmate"

// Transaction results.
const (
	ResultConfirmed    = "confirmed"
	ResultTimedOut     = "timed_out"
	ResultFailed       = "failed"
	ResultRejected     = "rejected"
	ResultNotConnected = "not_connected"
	ResultError        = "error"
)

// Fetch results.
const (
	FetchOK       = "ok"
	FetchNotFound = "not_found"
	FetchDecode   = "decode_error"
	FetchError    = "error"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	transactions  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	confirmations prometheus.Histogram
	connected     prometheus.Gauge
	score         prometheus.Gauge
	identity      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Submitted program transactions by instruction and result.",
		}, []string{"instruction", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_fetches_total",
			Help:      "Player account fetch attempts by result.",
		}, []string{"result"}),
		confirmations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from submission to confirmation.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 when the RPC peer answered the last liveness probe.",
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Cached player score, including unconfirmed local increments.",
		}),
		identity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_loads_total",
			Help:      "Identity loads by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.transactions, m.fetches, m.confirmations, m.connected, m.score, m.identity)
	return m
}

func (m *Metrics) ObserveTransaction(instruction, result string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(instruction, result).Inc()
}

func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveConfirmation(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmations.Observe(d.Seconds())
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) SetScore(score uint64) {
	if m == nil {
		return
	}
	m.score.Set(float64(score))
}

func (m *Metrics) ObserveIdentityLoad(outcome string) {
	if m == nil {
		return
	}
	m.identity.WithLabelValues(outcome).Inc()
}
