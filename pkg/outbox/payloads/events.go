package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OrderSnapshot is the status block every order event carries so consumers
// never need to read the order store.
type OrderSnapshot struct {
	OrderID          uuid.UUID              `json:"order_id"`
	CustomerID       uuid.UUID              `json:"customer_id"`
	VendorID         uuid.UUID              `json:"vendor_id"`
	OrderStatus      enums.OrderStatus      `json:"order_status"`
	AcceptanceStatus enums.AcceptanceStatus `json:"order_acceptance_status"`
	DeliveryStatus   enums.DeliveryStatus   `json:"delivery_status"`
	PaymentStatus    enums.PaymentStatus    `json:"payment_status"`
	RefundStatus     enums.RefundStatus     `json:"refund_status"`
	DeliveryService  enums.DeliveryService  `json:"delivery_service"`
	TotalAmount      decimal.Decimal        `json:"total_amount"`
	Currency         string                 `json:"currency"`
	Version          int                    `json:"version"`
}

// OrderLifecycleEvent is emitted for every applied transition. The event type
// tells consumers which part of the snapshot changed.
type OrderLifecycleEvent struct {
	OrderSnapshot
	Action      enums.TransitionAction `json:"action"`
	Actor       enums.Actor            `json:"actor"`
	CancelledBy enums.CancelledBy      `json:"cancelled_by,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// OrderPlacedEvent announces a new order with its price breakdown.
type OrderPlacedEvent struct {
	OrderSnapshot
	PaymentMethod      enums.PaymentMethod `json:"payment_method"`
	PaymentID          *string             `json:"payment_id,omitempty"`
	ItemCount          int                 `json:"item_count"`
	VendorPayoutAmount decimal.Decimal     `json:"vendor_payout_amount"`
	PlacedAt           time.Time           `json:"placed_at"`
}

// OrderRefundSettledEvent carries the admin's three-way split.
type OrderRefundSettledEvent struct {
	OrderSnapshot
	CustomerAmount     decimal.Decimal `json:"customer_amount"`
	VendorPayoutAmount decimal.Decimal `json:"vendor_payout_amount"`
	DeliveryCharges    decimal.Decimal `json:"delivery_charges"`
	SettledBy          *uuid.UUID      `json:"settled_by,omitempty"`
	SettledAt          time.Time       `json:"settled_at"`
}

// OrderDispatchEvent reports the outcome of handing an order to a delivery provider.
type OrderDispatchEvent struct {
	OrderSnapshot
	DeliveryOrderID *string `json:"delivery_order_id,omitempty"`
	Attempts        int     `json:"attempts"`
	Error           string  `json:"error,omitempty"`
}

// OrderRatedEvent carries the customer's rating.
type OrderRatedEvent struct {
	OrderSnapshot
	Rating int    `json:"rating"`
	Review string `json:"review,omitempty"`
}
