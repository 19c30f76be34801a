package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OrderEvent is the append-only audit trail of transitions and dropped webhook events.
type OrderEvent struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Actor              enums.Actor             `gorm:"column:actor;type:text;not null"`
	Action             enums.TransitionAction  `gorm:"column:action;type:text;not null"`
	Outcome            enums.OrderEventOutcome `gorm:"column:outcome;type:text;not null"`
	FromOrderStatus    enums.OrderStatus       `gorm:"column:from_order_status;type:text;not null"`
	ToOrderStatus      enums.OrderStatus       `gorm:"column:to_order_status;type:text;not null"`
	FromDeliveryStatus enums.DeliveryStatus    `gorm:"column:from_delivery_status;type:text;not null"`
	ToDeliveryStatus   enums.DeliveryStatus    `gorm:"column:to_delivery_status;type:text;not null"`
	Provider           *string                 `gorm:"column:provider"`
	Reason             *string                 `gorm:"column:reason"`
	Payload            json.RawMessage         `gorm:"column:payload;type:jsonb"`
	Version            int                     `gorm:"column:version;not null"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
}
