// Package delivery hosts the delivery partner adapters and the dispatcher that
// hands committed orders to them.
package delivery

import (
	"context"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// EventKind distinguishes status callbacks from rider location pings.
type EventKind string

const (
	EventKindStatus   EventKind = "status"
	EventKindLocation EventKind = "location"
)

// DispatchRequest is what a provider needs to create a delivery job.
// Vendor may be nil when the vendor read model is unavailable.
type DispatchRequest struct {
	Order  *models.Order
	Vendor *models.Vendor
}

// DispatchReceipt is the provider's acknowledgement of a delivery job.
type DispatchReceipt struct {
	DeliveryOrderID  string
	PickupETAMinutes *int
}

// Provider is implemented once per delivery partner and selected by the
// order's delivery_service.
type Provider interface {
	Service() enums.DeliveryService
	NormalizeEvent(ctx context.Context, kind EventKind, body []byte) (*orders.DeliveryStatusEvent, error)
	DispatchOrder(ctx context.Context, req DispatchRequest) (*DispatchReceipt, error)
	CancelAtProvider(ctx context.Context, order *models.Order, reason string) error
}
