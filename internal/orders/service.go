package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Service exposes order reads scoped to the caller.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetail, error)
	History(ctx context.Context, orderID uuid.UUID, viewer Viewer) ([]OrderEventDetail, error)
	// Describe renders an order the caller already holds, e.g. a transition result.
	Describe(order *models.Order, viewer Viewer) *OrderDetail
}

type service struct {
	repo         Repository
	refundWindow time.Duration
	now          func() time.Time
}

// NewService builds the read service.
func NewService(repo Repository, cfg Config) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{
		repo:         repo,
		refundWindow: cfg.RefundWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetail, error) {
	order, err := s.load(ctx, orderID, viewer)
	if err != nil {
		return nil, err
	}
	return toOrderDetail(order, viewer, guardEnv{now: s.now(), refundWindow: s.refundWindow}), nil
}

func (s *service) Describe(order *models.Order, viewer Viewer) *OrderDetail {
	if order == nil {
		return nil
	}
	return toOrderDetail(order, viewer, guardEnv{now: s.now(), refundWindow: s.refundWindow})
}

func (s *service) History(ctx context.Context, orderID uuid.UUID, viewer Viewer) ([]OrderEventDetail, error) {
	if viewer.Actor != enums.ActorAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order history requires admin")
	}
	if _, err := s.load(ctx, orderID, viewer); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order events")
	}
	out := make([]OrderEventDetail, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEventDetail(row))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := authorize(order, Command{Actor: viewer.Actor, ActorUserID: viewer.UserID, VendorID: viewer.VendorID}); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if viewer.Actor == enums.ActorSystem {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "system actor cannot read orders")
	}
	return order, nil
}
