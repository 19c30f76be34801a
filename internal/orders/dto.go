package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Viewer identifies who is reading an order.
type Viewer struct {
	Actor    enums.Actor
	UserID   *uuid.UUID
	VendorID *uuid.UUID
}

// OrderLineItemDetail is one snapshotted line of the order.
type OrderLineItemDetail struct {
	ID          uuid.UUID       `json:"id"`
	MenuItemID  uuid.UUID       `json:"menu_item_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Addons      types.Addons    `json:"addons,omitempty"`
	AddonsTotal decimal.Decimal `json:"addons_total"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// RiderLocation is the last known rider position.
type RiderLocation struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Accuracy         *float64  `json:"accuracy,omitempty"`
	PickupETAMinutes *int      `json:"pickup_eta,omitempty"`
	DropETAMinutes   *int      `json:"drop_eta,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RefundSettlement is the recorded three-way refund split.
type RefundSettlement struct {
	CustomerAmount        decimal.Decimal `json:"refund_settled_customer_amount"`
	VendorPayoutAmount    decimal.Decimal `json:"refund_settled_vendor_payout_amount"`
	DeliveryCharges       decimal.Decimal `json:"refund_settled_delivery_charges"`
	NoteToCustomer        *string         `json:"refund_settlement_note_to_customer,omitempty"`
	NoteToVendor          *string         `json:"refund_settlement_note_to_vendor,omitempty"`
	NoteToDeliveryPartner *string         `json:"refund_settlement_note_to_delivery_partner,omitempty"`
	SettledAt             *time.Time      `json:"settled_at,omitempty"`
}

// OrderDetail is the order as returned to API callers.
type OrderDetail struct {
	OrderID                uuid.UUID              `json:"order_id"`
	CustomerID             uuid.UUID              `json:"customer_id"`
	VendorID               uuid.UUID              `json:"vendor_id"`
	OrderStatus            enums.OrderStatus      `json:"order_status"`
	AcceptanceStatus       enums.AcceptanceStatus `json:"order_acceptance_status"`
	DeliveryStatus         enums.DeliveryStatus   `json:"delivery_status"`
	RefundStatus           enums.RefundStatus     `json:"refund_status"`
	CancelledBy            enums.CancelledBy      `json:"cancelled_by"`
	CancellationReason     *string                `json:"cancellation_reason,omitempty"`
	RejectionReason        *string                `json:"rejection_reason,omitempty"`
	PreparationTimeMinutes *int                   `json:"preparation_time,omitempty"`

	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	PaymentID       *string               `json:"payment_id,omitempty"`
	DeliveryService enums.DeliveryService `json:"delivery_service"`
	DeliveryOrderID *string               `json:"delivery_order_id,omitempty"`
	DispatchStatus  enums.DispatchStatus  `json:"dispatch_status"`

	Currency           string                `json:"currency"`
	TotalAmount        decimal.Decimal       `json:"total_amount"`
	DeliveryCharges    decimal.Decimal       `json:"delivery_charges"`
	VendorPayoutAmount *decimal.Decimal      `json:"vendor_payout_amount,omitempty"`
	InvoiceBreakout    types.InvoiceBreakout `json:"invoice_breakout"`
	Refund             *RefundSettlement     `json:"refund_settlement,omitempty"`
	Rider              *RiderLocation        `json:"rider_location,omitempty"`
	ReturnSKUs         []string              `json:"return_skus,omitempty"`

	CustomerRating *int    `json:"rating,omitempty"`
	CustomerReview *string `json:"review,omitempty"`

	OrderPlacedTime time.Time  `json:"order_placed_time"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	ReadyAt         *time.Time `json:"ready_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	Items          []OrderLineItemDetail    `json:"items"`
	AllowedActions []enums.TransitionAction `json:"allowed_actions"`
	Version        int                      `json:"version"`
}

// OrderEventDetail is one audit row.
type OrderEventDetail struct {
	Actor              enums.Actor             `json:"actor"`
	Action             enums.TransitionAction  `json:"action"`
	Outcome            enums.OrderEventOutcome `json:"outcome"`
	FromOrderStatus    enums.OrderStatus       `json:"from_order_status"`
	ToOrderStatus      enums.OrderStatus       `json:"to_order_status"`
	FromDeliveryStatus enums.DeliveryStatus    `json:"from_delivery_status"`
	ToDeliveryStatus   enums.DeliveryStatus    `json:"to_delivery_status"`
	Provider           *string                 `json:"provider,omitempty"`
	Reason             *string                 `json:"reason,omitempty"`
	Version            int                     `json:"version"`
	CreatedAt          time.Time               `json:"created_at"`
}

func toOrderDetail(o *models.Order, viewer Viewer, env guardEnv) *OrderDetail {
	detail := &OrderDetail{
		OrderID:                o.ID,
		CustomerID:             o.CustomerID,
		VendorID:               o.VendorID,
		OrderStatus:            o.OrderStatus,
		AcceptanceStatus:       o.AcceptanceStatus,
		DeliveryStatus:         o.DeliveryStatus,
		RefundStatus:           o.RefundStatus,
		CancelledBy:            o.CancelledBy,
		CancellationReason:     o.CancellationReason,
		RejectionReason:        o.RejectionReason,
		PreparationTimeMinutes: o.PreparationTimeMinutes,
		PaymentMethod:          o.PaymentMethod,
		PaymentStatus:          o.PaymentStatus,
		PaymentID:              o.PaymentID,
		DeliveryService:        o.DeliveryService,
		DeliveryOrderID:        o.DeliveryOrderID,
		DispatchStatus:         o.DispatchStatus,
		Currency:               o.Currency,
		TotalAmount:            o.TotalAmount,
		DeliveryCharges:        o.DeliveryCharges,
		InvoiceBreakout:        o.InvoiceBreakout,
		ReturnSKUs:             o.ReturnSKUs,
		CustomerRating:         o.CustomerRating,
		CustomerReview:         o.CustomerReview,
		OrderPlacedTime:        o.OrderPlacedTime,
		AcceptedAt:             o.AcceptedAt,
		ReadyAt:                o.ReadyAt,
		DeliveredAt:            o.DeliveredAt,
		CancelledAt:            o.CancelledAt,
		AllowedActions:         allowedActions(o, viewer.Actor, env),
		Version:                o.Version,
		Items:                  make([]OrderLineItemDetail, 0, len(o.Items)),
	}
	if viewer.Actor != enums.ActorCustomer {
		payout := o.VendorPayoutAmount
		detail.VendorPayoutAmount = &payout
	}
	if o.RefundStatus == enums.RefundStatusSettled {
		detail.Refund = &RefundSettlement{
			CustomerAmount:        o.RefundSettledCustomerAmount.Decimal,
			VendorPayoutAmount:    o.RefundSettledVendorPayoutAmount.Decimal,
			DeliveryCharges:       o.RefundSettledDeliveryCharges.Decimal,
			NoteToCustomer:        o.RefundNoteToCustomer,
			NoteToVendor:          o.RefundNoteToVendor,
			NoteToDeliveryPartner: o.RefundNoteToDeliveryPartner,
			SettledAt:             o.RefundSettledAt,
		}
	}
	if o.RiderLatitude != nil && o.RiderLongitude != nil && o.RiderLocationUpdatedAt != nil {
		detail.Rider = &RiderLocation{
			Latitude:         *o.RiderLatitude,
			Longitude:        *o.RiderLongitude,
			Accuracy:         o.RiderLocationAccuracy,
			PickupETAMinutes: o.PickupETAMinutes,
			DropETAMinutes:   o.DropETAMinutes,
			UpdatedAt:        *o.RiderLocationUpdatedAt,
		}
	}
	for _, item := range o.Items {
		detail.Items = append(detail.Items, OrderLineItemDetail{
			ID:          item.ID,
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Addons:      item.Addons,
			AddonsTotal: item.AddonsTotal,
			TotalPrice:  item.TotalPrice,
		})
	}
	return detail
}

func toEventDetail(row models.OrderEvent) OrderEventDetail {
	return OrderEventDetail{
		Actor:              row.Actor,
		Action:             row.Action,
		Outcome:            row.Outcome,
		FromOrderStatus:    row.FromOrderStatus,
		ToOrderStatus:      row.ToOrderStatus,
		FromDeliveryStatus: row.FromDeliveryStatus,
		ToDeliveryStatus:   row.ToDeliveryStatus,
		Provider:           row.Provider,
		Reason:             row.Reason,
		Version:            row.Version,
		CreatedAt:          row.CreatedAt,
	}
}
