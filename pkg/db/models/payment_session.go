package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// PaymentSession holds the cart snapshot for an online order until the
// gateway reports a captured payment. Its ID is the public payment_id.
type PaymentSession struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID       uuid.UUID                  `gorm:"column:customer_id;type:uuid;not null"`
	VendorID         uuid.UUID                  `gorm:"column:vendor_id;type:uuid;not null"`
	Status           enums.PaymentSessionStatus `gorm:"column:status;type:payment_session_status;not null;default:'pending'"`
	Amount           decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string                     `gorm:"column:currency;not null"`
	GatewayReference string                     `gorm:"column:gateway_reference;not null"`
	DeliveryService  enums.DeliveryService      `gorm:"column:delivery_service;type:delivery_service;not null"`
	Snapshot         types.CartSnapshot         `gorm:"column:snapshot;type:jsonb;not null"`
	LastResult       *enums.PaymentResult       `gorm:"column:last_result;type:payment_result"`
	LastCheckedAt    *time.Time                 `gorm:"column:last_checked_at"`
	OrderID          *uuid.UUID                 `gorm:"column:order_id;type:uuid"`
	ExpiresAt        time.Time                  `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentID returns the public identifier handed to the client.
func (s *PaymentSession) PaymentID() string {
	return s.ID.String()
}
