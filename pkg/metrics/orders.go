package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts lifecycle transitions, webhook ingestion and dispatch outcomes.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order transitions by action and outcome.",
	}, []string{"action", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_version_conflicts_total",
		Help: "Optimistic concurrency conflicts while applying transitions.",
	}, []string{"action"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_webhook_events_total",
		Help: "Delivery provider callbacks by provider and outcome.",
	}, []string{"provider", "outcome"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_dispatch_total",
		Help: "Dispatch attempts to delivery providers by result.",
	}, []string{"provider", "result"})
	reg.MustRegister(transitions, conflicts, webhooks, dispatches)
	return &OrderMetrics{
		transitions: transitions,
		conflicts:   conflicts,
		webhooks:    webhooks,
		dispatches:  dispatches,
	}
}

func (m *OrderMetrics) IncTransition(action, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncConflict(action string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *OrderMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncDispatch(provider, result string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}
