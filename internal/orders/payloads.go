package orders

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// AcceptPayload carries the vendor's optional preparation estimate.
type AcceptPayload struct {
	PreparationTimeMinutes *int
}

// RejectPayload carries the vendor's rejection reason.
type RejectPayload struct {
	Reason string
}

// CancelPayload identifies the cancellation reason picked by the actor.
type CancelPayload struct {
	ReasonID *uuid.UUID
	Reason   string
}

// DeliveryStatusEvent is the provider-agnostic shape of a delivery partner
// callback. An empty ReportedStatus marks a location-only ping.
type DeliveryStatusEvent struct {
	Provider              enums.DeliveryService `json:"provider"`
	DeliveryOrderID       string                `json:"delivery_order_id"`
	ClientOrderID         string                `json:"client_order_id,omitempty"`
	EventID               string                `json:"event_id,omitempty"`
	ReportedStatus        enums.DeliveryStatus  `json:"reported_status,omitempty"`
	EventTimestamp        time.Time             `json:"event_timestamp"`
	RiderLatitude         *float64              `json:"rider_latitude,omitempty"`
	RiderLongitude        *float64              `json:"rider_longitude,omitempty"`
	RiderLocationAccuracy *float64              `json:"location_accuracy,omitempty"`
	PickupETAMinutes      *int                  `json:"pickup_eta,omitempty"`
	DropETAMinutes        *int                  `json:"drop_eta,omitempty"`
	ReturnSKUs            []string              `json:"return_skus,omitempty"`
	Raw                   json.RawMessage       `json:"raw,omitempty"`
}

// IsLocationOnly reports whether the event only updates rider position.
func (e DeliveryStatusEvent) IsLocationOnly() bool {
	return e.ReportedStatus == ""
}

// HasLocation reports whether the event carries rider coordinates.
func (e DeliveryStatusEvent) HasLocation() bool {
	return e.RiderLatitude != nil && e.RiderLongitude != nil
}

// DedupeKey derives the idempotency key for the event: the provider's own
// event id when present, else status plus timestamp.
func (e DeliveryStatusEvent) DedupeKey() string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return fmt.Sprintf("%s:%s", e.Provider, id)
	}
	status := string(e.ReportedStatus)
	if status == "" {
		status = "location"
	}
	ref := e.DeliveryOrderID
	if ref == "" {
		ref = e.ClientOrderID
	}
	return fmt.Sprintf("%s:%s:%s:%d", e.Provider, ref, status, e.EventTimestamp.UTC().UnixMilli())
}

// PaymentEventPayload is a payment gateway outcome folded into the order.
type PaymentEventPayload struct {
	Result           enums.PaymentResult
	GatewayReference string
	Amount           decimal.Decimal
}

// SettleRefundPayload is the admin's three-way split of the charged amount.
type SettleRefundPayload struct {
	CustomerAmount        decimal.Decimal
	VendorPayoutAmount    decimal.Decimal
	DeliveryCharges       decimal.Decimal
	NoteToCustomer        string
	NoteToVendor          string
	NoteToDeliveryPartner string
	SettledBy             *uuid.UUID
}

// Total sums the three shares.
func (p SettleRefundPayload) Total() decimal.Decimal {
	return p.CustomerAmount.Add(p.VendorPayoutAmount).Add(p.DeliveryCharges)
}

// RatePayload is the customer's rating of a completed order.
type RatePayload struct {
	Rating int
	Review string
}

// RecordDispatchPayload reports the outcome of handing the order to its provider.
type RecordDispatchPayload struct {
	DeliveryOrderID string
	Failed          bool
	Error           string
	Attempts        int
}
