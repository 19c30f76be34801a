package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists payment sessions for online checkouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.PaymentSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
	FindByGatewayReference(ctx context.Context, ref string) (*models.PaymentSession, error)
	MarkChecked(ctx context.Context, id uuid.UUID, result enums.PaymentResult, at time.Time) error
	MarkCaptured(ctx context.Context, id, orderID uuid.UUID, at time.Time) error
	Expire(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment session repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.PaymentSession) error {
	if session.Status == "" {
		session.Status = enums.PaymentSessionStatusPending
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindByGatewayReference(ctx context.Context, ref string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.WithContext(ctx).Where("gateway_reference = ?", ref).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) MarkChecked(ctx context.Context, id uuid.UUID, result enums.PaymentResult, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_result":     result,
			"last_checked_at": at,
			"updated_at":      at,
		}).Error
}

// MarkCaptured links the session to its order. Expired sessions are revived
// because funds were captured after all.
func (r *repository) MarkCaptured(ctx context.Context, id, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      enums.PaymentSessionStatusCaptured,
			"order_id":    orderID,
			"last_result": enums.PaymentResultCaptured,
			"updated_at":  at,
		}).Error
}

// Expire closes a session that is still pending.
func (r *repository) Expire(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", id, enums.PaymentSessionStatusPending).
		Updates(map[string]any{
			"status":     enums.PaymentSessionStatusExpired,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentSessionStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
