package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-sync/pkg/enums"
)

const (
	OutboxOutcomePublished    = "published"
	OutboxOutcomeRetry        = "retry"
	OutboxOutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics counts publisher results per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

func (m *OutboxMetrics) Observe(eventType enums.OutboxEventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(string(eventType)), outcome).Inc()
}
