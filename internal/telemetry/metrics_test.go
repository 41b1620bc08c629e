package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordSearch("hybrid", 12*time.Millisecond)
	m.RecordSearch("hybrid", 15*time.Millisecond)
	m.RecordSearch("lexical_only", 5*time.Millisecond)
	m.RecordDegradation(StageVector, ReasonTimeout)
	m.RecordCacheEvent("hit")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.searches.WithLabelValues("hybrid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.searches.WithLabelValues("lexical_only")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.degraded.WithLabelValues(StageVector, ReasonTimeout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheEvents.WithLabelValues("hit")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSearch("hybrid", time.Millisecond)
	m.RecordDegradation(StageRerank, ReasonUnavailable)
	m.RecordStage(StageFusion, time.Millisecond)
	m.RecordCacheEvent("miss")
	assert.Equal(t, 0, m.Latency().Count)
}

func TestLatencyWindow(t *testing.T) {
	w := newLatencyWindow(8)

	// Empty window.
	assert.Equal(t, 0, w.snapshot().Count)

	for i := 1; i <= 4; i++ {
		w.record(time.Duration(i) * time.Millisecond)
	}
	snap := w.snapshot()
	require.Equal(t, 4, snap.Count)
	assert.Equal(t, 2*time.Millisecond, snap.P50)
	assert.Equal(t, 4*time.Millisecond, snap.P99)

	// Wrap around: the ring keeps only the newest 8 samples.
	for i := 5; i <= 20; i++ {
		w.record(time.Duration(i) * time.Millisecond)
	}
	snap = w.snapshot()
	assert.Equal(t, 8, snap.Count)
	assert.GreaterOrEqual(t, snap.P50, 13*time.Millisecond)
}
