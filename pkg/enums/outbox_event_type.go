package enums

import (
	"fmt"
	"slices"
)

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderPlaced                OutboxEventType = "order_placed"
	EventOrderAccepted              OutboxEventType = "order_accepted"
	EventOrderRejected              OutboxEventType = "order_rejected"
	EventOrderReady                 OutboxEventType = "order_ready"
	EventOrderDeliveryStatusChanged OutboxEventType = "order_delivery_status_changed"
	EventOrderCompleted             OutboxEventType = "order_completed"
	EventOrderCancelled             OutboxEventType = "order_cancelled"
	EventOrderRefundPending         OutboxEventType = "order_refund_pending"
	EventOrderRefundSettled         OutboxEventType = "order_refund_settled"
	EventOrderRated                 OutboxEventType = "order_rated"
	EventOrderDispatched            OutboxEventType = "order_dispatched"
	EventOrderDispatchFailed        OutboxEventType = "order_dispatch_failed"
	EventOrderPaymentUpdated        OutboxEventType = "order_payment_updated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderAccepted,
	EventOrderRejected,
	EventOrderReady,
	EventOrderDeliveryStatusChanged,
	EventOrderCompleted,
	EventOrderCancelled,
	EventOrderRefundPending,
	EventOrderRefundSettled,
	EventOrderRated,
	EventOrderDispatched,
	EventOrderDispatchFailed,
	EventOrderPaymentUpdated,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, o)
}

// OutboxEventTypes lists every event the order lifecycle emits.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into a OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if t := OutboxEventType(value); t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
