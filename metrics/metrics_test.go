package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransaction("add_points", ResultConfirmed)
	m.ObserveTransaction("add_points", ResultConfirmed)
	m.ObserveTransaction("add_points", ResultTimedOut)
	m.ObserveFetch(FetchNotFound)
	m.ObserveConfirmation(750 * time.Millisecond)
	m.SetConnected(true)
	m.SetScore(120)
	m.ObserveIdentityLoad("restored")

	require.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("add_points", ResultConfirmed)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("add_points", ResultTimedOut)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(FetchNotFound)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	require.Equal(t, 120.0, testutil.ToFloat64(m.score))
	require.Equal(t, 1.0, testutil.ToFloat64(m.identity.WithLabelValues("restored")))
	require.Equal(t, 1, testutil.CollectAndCount(m.confirmations))

	m.SetConnected(false)
	require.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveTransaction("initialize", ResultFailed)
		m.ObserveFetch(FetchOK)
		m.ObserveConfirmation(time.Second)
		m.SetConnected(true)
		m.SetScore(1)
		m.ObserveIdentityLoad("ephemeral")
	})
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
