package observability

import (
	"testing"

	"github.com/xraph/go-utils/metrics"
)

func TestNewMetricsCreatesInstruments(t *testing.T) {
	m := NewMetrics(metrics.NewMetricsCollector("test"))

	if m.EventsEnqueuedTotal == nil {
		t.Fatal("EventsEnqueuedTotal should not be nil")
	}
	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.PendingDeliveries == nil {
		t.Fatal("PendingDeliveries should not be nil")
	}
	if m.LeasesReclaimedTotal == nil {
		t.Fatal("LeasesReclaimedTotal should not be nil")
	}
	if m.ReplaysTotal == nil {
		t.Fatal("ReplaysTotal should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	m := NewMetrics(metrics.NewMetricsCollector("test"))

	m.RecordDelivery("completed", 0.12)
	m.RecordDelivery("retried", 1.5)
	m.RecordDelivery("failed", 0.3)

	m.EventsEnqueuedTotal.Inc()
	m.PendingDeliveries.Add(3)
	m.PendingDeliveries.Dec()
	m.LeasesReclaimedTotal.Inc()
	m.ReplaysTotal.Inc()
}
