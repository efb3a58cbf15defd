package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes used as the "outcome" label.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// SyncMetrics tracks webhook and backfill processing.
type SyncMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "events_total",
		Help:      "Sync events processed by topic and outcome.",
	}, []string{"topic", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "event_duration_seconds",
		Help:      "Time spent handling one sync event.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"topic"})
	reg.MustRegister(events, duration)
	return &SyncMetrics{events: events, duration: duration}
}

// Observe records one handled event.
func (m *SyncMetrics) Observe(topic, outcome string, elapsed time.Duration) {
	if m == nil || m.events == nil {
		return
	}
	topic = normalizeLabel(topic)
	m.events.WithLabelValues(topic, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// IncDuplicate counts a delivery dropped by the dedupe guard.
func (m *SyncMetrics) IncDuplicate(topic string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(topic), OutcomeDuplicate).Inc()
}
