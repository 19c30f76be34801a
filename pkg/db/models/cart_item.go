package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// CartItem is the read model of the customer's active cart kept by the menu service.
type CartItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;not null"`
	VendorID   uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null"`
	MenuItemID uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Addons     types.Addons    `gorm:"column:addons;type:jsonb"`
	Available  bool            `gorm:"column:available;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
}
