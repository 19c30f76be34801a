package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// mutableColumns lists every column a transition may touch. Identity, money
// snapshot and creation columns are never rewritten.
var mutableColumns = []string{
	"order_status",
	"order_acceptance_status",
	"delivery_status",
	"refund_status",
	"cancelled_by",
	"cancellation_reason_id",
	"cancellation_reason",
	"rejection_reason",
	"preparation_time_minutes",
	"payment_status",
	"payment_gateway_reference",
	"refund_gateway_reference",
	"delivery_order_id",
	"dispatch_status",
	"dispatch_attempts",
	"last_dispatch_error",
	"refund_settled_customer_amount",
	"refund_settled_vendor_payout_amount",
	"refund_settled_delivery_charges",
	"refund_settlement_note_to_customer",
	"refund_settlement_note_to_vendor",
	"refund_settlement_note_to_delivery_partner",
	"refund_settled_by",
	"refund_settled_at",
	"marked_for_refund_at",
	"rider_latitude",
	"rider_longitude",
	"rider_location_accuracy",
	"rider_location_updated_at",
	"pickup_eta_minutes",
	"drop_eta_minutes",
	"return_skus",
	"delivery_event_at",
	"customer_rating",
	"customer_review",
	"rated_at",
	"accepted_at",
	"rejected_at",
	"ready_at",
	"delivered_at",
	"completed_at",
	"cancelled_at",
	"version",
	"updated_at",
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Version == 0 {
		order.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_id = ?", paymentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByDeliveryOrderID(ctx context.Context, service enums.DeliveryService, deliveryOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("delivery_service = ? AND delivery_order_id = ?", service, deliveryOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateWithVersion writes the mutable columns only when the stored version
// still matches expectedVersion. A false result means another writer won.
func (r *repository) UpdateWithVersion(ctx context.Context, order *models.Order, expectedVersion int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(order).
		Where("version = ?", expectedVersion).
		Select(mutableColumns).
		Omit("Items").
		Updates(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertEvent(ctx context.Context, event *models.OrderEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("version ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListDispatchFailed(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("dispatch_status = ? AND order_status = ?", enums.DispatchStatusFailed, enums.OrderStatusPlaced).
		Order("order_placed_time ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPendingDispatchBefore finds live orders whose post-commit dispatch never ran,
// e.g. because the process stopped between commit and the provider call.
func (r *repository) ListPendingDispatchBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("dispatch_status = ? AND order_status = ? AND order_placed_time < ?",
			enums.DispatchStatusPending, enums.OrderStatusPlaced, cutoff).
		Order("order_placed_time ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
