// Package catalog reads the cart, vendor and cancellation-reason data owned
// by neighbouring services.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Repository exposes the read models used while placing and cancelling orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to catalog reads.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ActiveCart returns the customer's cart lines in the order they were added.
func (r *Repository) ActiveCart(ctx context.Context, customerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return items, nil
}

// FindVendor loads the vendor read model.
func (r *Repository) FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return &vendor, nil
}

// FindCancellationReason loads an active reason that the actor may pick.
func (r *Repository) FindCancellationReason(ctx context.Context, id uuid.UUID, actor enums.Actor) (*models.CancellationReason, error) {
	var reason models.CancellationReason
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&reason).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown cancellation reason")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancellation reason")
	}
	if reason.UserType != actor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is not available to this actor")
	}
	return &reason, nil
}

// ListCancellationReasons returns the active reasons for an actor type.
func (r *Repository) ListCancellationReasons(ctx context.Context, actor enums.Actor) ([]models.CancellationReason, error) {
	var reasons []models.CancellationReason
	err := r.db.WithContext(ctx).
		Where("user_type = ? AND is_active = ?", actor, true).
		Order("created_at ASC").
		Find(&reasons).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cancellation reasons")
	}
	return reasons, nil
}
