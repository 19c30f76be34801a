package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CancellationReason is a catalog entry owned by the admin console.
type CancellationReason struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserType  enums.Actor `gorm:"column:user_type;type:text;not null"`
	Reason    string      `gorm:"column:reason;not null"`
	IsActive  bool        `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
}
