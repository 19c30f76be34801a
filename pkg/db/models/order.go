package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Order is the single source of truth for one customer order across
// acceptance, delivery, payment and refund.
type Order struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`

	OrderStatus      enums.OrderStatus      `gorm:"column:order_status;type:order_status;not null;default:'placed'"`
	AcceptanceStatus enums.AcceptanceStatus `gorm:"column:order_acceptance_status;type:order_acceptance_status;not null;default:'pending'"`
	DeliveryStatus   enums.DeliveryStatus   `gorm:"column:delivery_status;type:delivery_status;not null;default:'pending'"`
	RefundStatus     enums.RefundStatus     `gorm:"column:refund_status;type:refund_status;not null;default:'none'"`
	CancelledBy      enums.CancelledBy      `gorm:"column:cancelled_by;type:cancelled_by;not null;default:'none'"`

	CancellationReasonID   *uuid.UUID `gorm:"column:cancellation_reason_id;type:uuid"`
	CancellationReason     *string    `gorm:"column:cancellation_reason"`
	RejectionReason        *string    `gorm:"column:rejection_reason"`
	PreparationTimeMinutes *int       `gorm:"column:preparation_time_minutes"`

	PaymentMethod           enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus           enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentID               *string             `gorm:"column:payment_id;uniqueIndex:ux_orders_payment_id"`
	PaymentGatewayReference *string             `gorm:"column:payment_gateway_reference"`
	RefundGatewayReference  *string             `gorm:"column:refund_gateway_reference"`

	DeliveryService   enums.DeliveryService `gorm:"column:delivery_service;type:delivery_service;not null"`
	DeliveryOrderID   *string               `gorm:"column:delivery_order_id"`
	DispatchStatus    enums.DispatchStatus  `gorm:"column:dispatch_status;type:dispatch_status;not null;default:'pending'"`
	DispatchAttempts  int                   `gorm:"column:dispatch_attempts;not null;default:0"`
	LastDispatchError *string               `gorm:"column:last_dispatch_error"`

	Currency           string                `gorm:"column:currency;not null"`
	ItemsTotal         decimal.Decimal       `gorm:"column:items_total;type:numeric(12,2);not null"`
	DeliveryCharges    decimal.Decimal       `gorm:"column:delivery_charges;type:numeric(12,2);not null"`
	TotalAmount        decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	VendorPayoutAmount decimal.Decimal       `gorm:"column:vendor_payout_amount;type:numeric(12,2);not null"`
	InvoiceBreakout    types.InvoiceBreakout `gorm:"column:invoice_breakout;type:jsonb;not null"`

	RefundSettledCustomerAmount     decimal.NullDecimal `gorm:"column:refund_settled_customer_amount;type:numeric(12,2)"`
	RefundSettledVendorPayoutAmount decimal.NullDecimal `gorm:"column:refund_settled_vendor_payout_amount;type:numeric(12,2)"`
	RefundSettledDeliveryCharges    decimal.NullDecimal `gorm:"column:refund_settled_delivery_charges;type:numeric(12,2)"`
	RefundNoteToCustomer            *string             `gorm:"column:refund_settlement_note_to_customer"`
	RefundNoteToVendor              *string             `gorm:"column:refund_settlement_note_to_vendor"`
	RefundNoteToDeliveryPartner     *string             `gorm:"column:refund_settlement_note_to_delivery_partner"`
	RefundSettledBy                 *uuid.UUID          `gorm:"column:refund_settled_by;type:uuid"`
	RefundSettledAt                 *time.Time          `gorm:"column:refund_settled_at"`
	MarkedForRefundAt               *time.Time          `gorm:"column:marked_for_refund_at"`

	RiderLatitude          *float64         `gorm:"column:rider_latitude"`
	RiderLongitude         *float64         `gorm:"column:rider_longitude"`
	RiderLocationAccuracy  *float64         `gorm:"column:rider_location_accuracy"`
	RiderLocationUpdatedAt *time.Time       `gorm:"column:rider_location_updated_at"`
	PickupETAMinutes       *int             `gorm:"column:pickup_eta_minutes"`
	DropETAMinutes         *int             `gorm:"column:drop_eta_minutes"`
	ReturnSKUs             types.StringList `gorm:"column:return_skus;type:jsonb"`
	DeliveryEventAt        *time.Time       `gorm:"column:delivery_event_at"`

	CustomerRating *int       `gorm:"column:customer_rating"`
	CustomerReview *string    `gorm:"column:customer_review"`
	RatedAt        *time.Time `gorm:"column:rated_at"`

	OrderPlacedTime time.Time  `gorm:"column:order_placed_time;not null"`
	AcceptedAt      *time.Time `gorm:"column:accepted_at"`
	RejectedAt      *time.Time `gorm:"column:rejected_at"`
	ReadyAt         *time.Time `gorm:"column:ready_at"`
	DeliveredAt     *time.Time `gorm:"column:delivered_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at"`

	Version   int             `gorm:"column:version;not null;default:1"`
	Items     []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentCaptured reports whether the order holds customer funds.
func (o *Order) PaymentCaptured() bool {
	return o != nil && o.PaymentStatus == enums.PaymentStatusCaptured
}

// IsImmutable reports whether the order reached its final resting state.
func (o *Order) IsImmutable() bool {
	if o == nil || !o.OrderStatus.IsTerminal() {
		return false
	}
	return o.RefundStatus != enums.RefundStatusPending
}
