package orders

import (
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Snapshot captures the status block carried by every order event.
func Snapshot(o *models.Order) payloads.OrderSnapshot {
	return payloads.OrderSnapshot{
		OrderID:          o.ID,
		CustomerID:       o.CustomerID,
		VendorID:         o.VendorID,
		OrderStatus:      o.OrderStatus,
		AcceptanceStatus: o.AcceptanceStatus,
		DeliveryStatus:   o.DeliveryStatus,
		PaymentStatus:    o.PaymentStatus,
		RefundStatus:     o.RefundStatus,
		DeliveryService:  o.DeliveryService,
		TotalAmount:      o.TotalAmount,
		Currency:         o.Currency,
		Version:          o.Version,
	}
}

func actorRef(cmd Command) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: cmd.ActorUserID, Role: string(cmd.Actor)}
}

func buildDomainEvent(o *models.Order, cmd Command, t *transition, eventType enums.OutboxEventType) outbox.DomainEvent {
	snap := Snapshot(o)
	var data any
	switch eventType {
	case enums.EventOrderRefundSettled:
		settledAt := t.now
		if o.RefundSettledAt != nil {
			settledAt = *o.RefundSettledAt
		}
		data = payloads.OrderRefundSettledEvent{
			OrderSnapshot:      snap,
			CustomerAmount:     o.RefundSettledCustomerAmount.Decimal,
			VendorPayoutAmount: o.RefundSettledVendorPayoutAmount.Decimal,
			DeliveryCharges:    o.RefundSettledDeliveryCharges.Decimal,
			SettledBy:          o.RefundSettledBy,
			SettledAt:          settledAt,
		}
	case enums.EventOrderRated:
		review := ""
		if o.CustomerReview != nil {
			review = *o.CustomerReview
		}
		rating := 0
		if o.CustomerRating != nil {
			rating = *o.CustomerRating
		}
		data = payloads.OrderRatedEvent{OrderSnapshot: snap, Rating: rating, Review: review}
	case enums.EventOrderDispatched, enums.EventOrderDispatchFailed:
		msg := ""
		if o.LastDispatchError != nil {
			msg = *o.LastDispatchError
		}
		data = payloads.OrderDispatchEvent{
			OrderSnapshot:   snap,
			DeliveryOrderID: o.DeliveryOrderID,
			Attempts:        o.DispatchAttempts,
			Error:           msg,
		}
	default:
		evt := payloads.OrderLifecycleEvent{
			OrderSnapshot: snap,
			Action:        cmd.Action,
			Actor:         cmd.Actor,
			Reason:        t.reason,
			OccurredAt:    t.now,
		}
		if o.OrderStatus == enums.OrderStatusCancelled {
			evt.CancelledBy = o.CancelledBy
		}
		data = evt
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   o.ID,
		Actor:         actorRef(cmd),
		Data:          data,
		OccurredAt:    t.now,
	}
}

func placedEvent(o *models.Order, actor *outbox.ActorRef, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   o.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.OrderPlacedEvent{
			OrderSnapshot:      Snapshot(o),
			PaymentMethod:      o.PaymentMethod,
			PaymentID:          o.PaymentID,
			ItemCount:          len(o.Items),
			VendorPayoutAmount: o.VendorPayoutAmount,
			PlacedAt:           o.OrderPlacedTime,
		},
	}
}
