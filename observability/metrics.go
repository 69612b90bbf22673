package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds the engine's metric instruments, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsEnqueuedTotal  gu.Counter
	DeliveriesTotal      gu.Counter
	DeliveryLatency      gu.Histogram
	PendingDeliveries    gu.Gauge
	LeasesReclaimedTotal gu.Counter
	ReplaysTotal         gu.Counter
}

// NewMetrics creates the metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector() for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsEnqueuedTotal:  factory.Counter("webhooks_events_enqueued_total"),
		DeliveriesTotal:      factory.Counter("webhooks_deliveries_total"),
		DeliveryLatency:      factory.Histogram("webhooks_delivery_latency_seconds"),
		PendingDeliveries:    factory.Gauge("webhooks_pending_deliveries"),
		LeasesReclaimedTotal: factory.Counter("webhooks_leases_reclaimed_total"),
		ReplaysTotal:         factory.Counter("webhooks_replays_total"),
	}
}

// RecordDelivery records a delivery attempt with its outcome and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
