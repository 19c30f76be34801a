package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncEvent("order_placed", "published")
	m.IncEvent("order_placed", "published")
	m.IncEvent("order_cancelled", "dead_letter")
	m.ObservePublish("orders", 40*time.Millisecond)
	m.ObserveBatch(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "outcome", "published"); err != nil || got != 2 {
		t.Fatalf("expected published=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "order_cancelled"); err != nil || got != 1 {
		t.Fatalf("expected one dead letter, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "outbox_publish_duration_seconds", "topic", "orders"); err != nil || got < 0.039 || got > 0.041 {
		t.Fatalf("unexpected publish latency sum %f err=%v", got, err)
	}
	if findMetricFamily(mfs, "outbox_batch_size") == nil {
		t.Fatal("batch size histogram not registered")
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.IncEvent("order_placed", "published")
	m.ObserveBatch(1)
	NewOutboxMetrics(nil).ObservePublish("orders", time.Second)
}
