package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	defaultReconcileAge   = 5 * time.Minute
	defaultReconcileBatch = 100
)

type pendingSessions interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error)
	Expire(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, requester checkout.Requester, paymentID string) (*models.Order, error)
}

type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Sessions pendingSessions
	Checkout paymentConfirmer
	MinAge   time.Duration
	Batch    int
}

// NewPaymentReconcileJob confirms payment sessions whose client never came
// back and expires the ones that were abandoned.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("payment session repository required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	age := params.MinAge
	if age <= 0 {
		age = defaultReconcileAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		checkout: params.Checkout,
		minAge:   age,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	sessions pendingSessions
	checkout paymentConfirmer
	minAge   time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment_reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	sessions, err := j.sessions.ListPendingBefore(ctx, now.Add(-j.minAge), j.batch)
	if err != nil {
		return fmt.Errorf("list pending payment sessions: %w", err)
	}

	var errs error
	confirmed, expired, waiting := 0, 0, 0
	for _, session := range sessions {
		_, err := j.checkout.ConfirmPayment(ctx, checkout.Requester{Actor: enums.ActorSystem}, session.PaymentID())
		switch {
		case err == nil:
			confirmed++
		case pkgerrors.IsCode(err, pkgerrors.CodePaymentNotCaptured):
			if now.Before(session.ExpiresAt) {
				waiting++
				continue
			}
			ok, expErr := j.sessions.Expire(ctx, session.ID, now)
			if expErr != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", session.ID, expErr))
				continue
			}
			if ok {
				expired++
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("confirm session %s: %w", session.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(sessions),
		"confirmed": confirmed,
		"expired":   expired,
		"waiting":   waiting,
	}), "payment reconciliation complete")
	return errs
}
