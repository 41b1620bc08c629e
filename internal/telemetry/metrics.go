// Package telemetry exposes search pipeline metrics: Prometheus
// collectors for operators plus an in-memory latency window for the
// status command.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage names used in metric labels.
const (
	StageLexical = "lexical"
	StageVector  = "vector"
	StageEmbed   = "embed"
	StageFusion  = "fusion"
	StageRerank  = "rerank"
	StageTotal   = "total"
)

// Degradation reasons used in metric labels.
const (
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
	ReasonDisabled    = "disabled"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing, so wiring stays optional in tests.
type Metrics struct {
	searches      *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	cacheEvents   *prometheus.CounterVec

	latency *latencyWindow
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loreleaf_searches_total",
			Help: "Completed searches by response mode.",
		}, []string{"mode"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loreleaf_search_degraded_total",
			Help: "Degradation events by pipeline stage and reason.",
		}, []string{"stage", "reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loreleaf_stage_duration_seconds",
			Help:    "Pipeline stage wall time.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loreleaf_cache_events_total",
			Help: "Query cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		latency: newLatencyWindow(1024),
	}

	if reg != nil {
		reg.MustRegister(m.searches, m.degraded, m.stageDuration, m.cacheEvents)
	}
	return m
}

// RecordSearch counts a completed search and feeds the latency window.
func (m *Metrics) RecordSearch(mode string, latency time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
	m.stageDuration.WithLabelValues(StageTotal).Observe(latency.Seconds())
	m.latency.record(latency)
}

// RecordDegradation counts a stage-level degradation event.
func (m *Metrics) RecordDegradation(stage, reason string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(stage, reason).Inc()
}

// RecordStage observes one stage's wall time.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordCacheEvent counts a query cache lookup outcome.
func (m *Metrics) RecordCacheEvent(result string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(result).Inc()
}

// Latency returns a snapshot of recent search latencies.
func (m *Metrics) Latency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.latency.snapshot()
}
