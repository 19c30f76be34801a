package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vendor is the read model of a restaurant maintained by the onboarding service.
type Vendor struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	IsOpen          bool            `gorm:"column:is_open;not null"`
	CommissionRate  decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	PackagingCharge decimal.Decimal `gorm:"column:packaging_charge;type:numeric(12,2);not null"`
	Latitude        *float64        `gorm:"column:latitude"`
	Longitude       *float64        `gorm:"column:longitude"`
	Address         *string         `gorm:"column:address"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}
