package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository defines persistence operations for the order store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	FindByDeliveryOrderID(ctx context.Context, service enums.DeliveryService, deliveryOrderID string) (*models.Order, error)
	UpdateWithVersion(ctx context.Context, order *models.Order, expectedVersion int) (bool, error)
	InsertEvent(ctx context.Context, event *models.OrderEvent) error
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
	ListDispatchFailed(ctx context.Context, limit int) ([]models.Order, error)
	ListPendingDispatchBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AfterCommitHook runs once a transition is durably applied. Hooks perform
// provider calls that must never hold the order row.
type AfterCommitHook interface {
	AfterCommit(ctx context.Context, result *Result)
}

// AfterCommitFunc adapts a function into an AfterCommitHook.
type AfterCommitFunc func(ctx context.Context, result *Result)

func (f AfterCommitFunc) AfterCommit(ctx context.Context, result *Result) {
	f(ctx, result)
}
