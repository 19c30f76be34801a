package router

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/orderflow-backend/internal/analytics/writer"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// BuildRow flattens a decoded order event into a lifecycle row.
func BuildRow(envelope types.Envelope, payload any) (types.OrderLifecycleRow, error) {
	payloadJSON, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.OrderLifecycleRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	row := types.OrderLifecycleRow{
		EventID:    envelope.EventID,
		EventType:  envelope.EventType.String(),
		OccurredAt: envelope.OccurredAt.UTC(),
		Payload:    payloadJSON,
	}
	if envelope.Actor != nil {
		row.Actor = stringPtr(envelope.Actor.Role)
		if envelope.Actor.UserID != nil {
			row.ActorUserID = stringPtr(envelope.Actor.UserID.String())
		}
	}

	switch event := payload.(type) {
	case *payloads.OrderPlacedEvent:
		applySnapshot(&row, event.OrderSnapshot)
		row.PaymentMethod = stringPtr(event.PaymentMethod.String())
		row.VendorPayoutMinor = minorPtr(event.VendorPayoutAmount)
	case *payloads.OrderLifecycleEvent:
		applySnapshot(&row, event.OrderSnapshot)
		row.Action = stringPtr(event.Action.String())
		if row.Actor == nil {
			row.Actor = stringPtr(event.Actor.String())
		}
		if event.CancelledBy != enums.CancelledByNone {
			row.CancelledBy = stringPtr(event.CancelledBy.String())
		}
		row.Reason = stringPtr(event.Reason)
		if !event.OccurredAt.IsZero() {
			row.OccurredAt = event.OccurredAt.UTC()
		}
	case *payloads.OrderRefundSettledEvent:
		applySnapshot(&row, event.OrderSnapshot)
		row.RefundCustomerMinor = minorPtr(event.CustomerAmount)
		row.VendorPayoutMinor = minorPtr(event.VendorPayoutAmount)
		row.RefundDeliveryMinor = minorPtr(event.DeliveryCharges)
	case *payloads.OrderDispatchEvent:
		applySnapshot(&row, event.OrderSnapshot)
		row.DeliveryOrderID = event.DeliveryOrderID
		attempts := int64(event.Attempts)
		row.DispatchAttempts = &attempts
		row.Reason = stringPtr(event.Error)
	case *payloads.OrderRatedEvent:
		applySnapshot(&row, event.OrderSnapshot)
		rating := int64(event.Rating)
		row.Rating = &rating
	default:
		return types.OrderLifecycleRow{}, fmt.Errorf("%w: payload %T", ErrUnsupportedEventType, payload)
	}

	if row.OrderID == "" {
		row.OrderID = envelope.AggregateID
	}
	return row, nil
}

func applySnapshot(row *types.OrderLifecycleRow, snap payloads.OrderSnapshot) {
	row.OrderID = snap.OrderID.String()
	row.CustomerID = snap.CustomerID.String()
	row.VendorID = snap.VendorID.String()
	row.OrderVersion = int64(snap.Version)
	row.OrderStatus = snap.OrderStatus.String()
	row.AcceptanceStatus = snap.AcceptanceStatus.String()
	row.DeliveryStatus = snap.DeliveryStatus.String()
	row.PaymentStatus = snap.PaymentStatus.String()
	row.RefundStatus = snap.RefundStatus.String()
	row.DeliveryService = stringPtr(snap.DeliveryService.String())
	row.Currency = snap.Currency
	row.TotalMinor = toMinor(snap.TotalAmount)
}

// toMinor converts a two-decimal amount to integer minor units.
func toMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func minorPtr(amount decimal.Decimal) *int64 {
	v := toMinor(amount)
	return &v
}

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
