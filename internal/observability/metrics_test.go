package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTick(0.01, false)
	m.ObserveTick(0.2, true)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Packet("in", "play")
	m.Packet("in", "play")
	m.SetLoadedChunks(12)
	m.IntentDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickOverruns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Packets.WithLabelValues("in", "play")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.LoadedChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntentsDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, n := range []string{"mc_tick_duration_seconds", "mc_tick_overruns_total", "mc_sessions", "mc_packets_total", "mc_loaded_chunks", "mc_intents_dropped_total"} {
		assert.True(t, names[n], n)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick(1, true)
		m.SessionOpened()
		m.SessionClosed()
		m.Packet("out", "login")
		m.SetLoadedChunks(1)
		m.IntentDropped()
	})
}
