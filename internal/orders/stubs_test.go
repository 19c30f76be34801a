package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

type memRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]models.Order
	events    []models.OrderEvent
	conflicts int
	findErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[uuid.UUID]models.Order{}}
}

func (r *memRepo) WithTx(*gorm.DB) Repository { return r }

func (r *memRepo) Create(_ context.Context, order *models.Order) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.PaymentID != nil {
		for _, existing := range r.orders {
			if existing.PaymentID != nil && *existing.PaymentID == *order.PaymentID {
				return nil, errors.New("UNIQUE constraint failed: orders.payment_id")
			}
		}
	}
	r.orders[order.ID] = *order
	return order, nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	stored, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := stored
	return &copied, nil
}

func (r *memRepo) FindByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.orders {
		if stored.PaymentID != nil && *stored.PaymentID == paymentID {
			copied := stored
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) FindByDeliveryOrderID(_ context.Context, service enums.DeliveryService, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.orders {
		if stored.DeliveryService == service && stored.DeliveryOrderID != nil && *stored.DeliveryOrderID == id {
			copied := stored
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) UpdateWithVersion(_ context.Context, order *models.Order, expected int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return false, nil
	}
	stored, ok := r.orders[order.ID]
	if !ok || stored.Version != expected {
		return false, nil
	}
	r.orders[order.ID] = *order
	return true, nil
}

func (r *memRepo) InsertEvent(_ context.Context, event *models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepo) ListEvents(_ context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderEvent
	for _, evt := range r.events {
		if evt.OrderID == orderID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (r *memRepo) ListDispatchFailed(context.Context, int) ([]models.Order, error) {
	return nil, nil
}

func (r *memRepo) ListPendingDispatchBefore(context.Context, time.Time, int) ([]models.Order, error) {
	return nil, nil
}

func (r *memRepo) stored(id uuid.UUID) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutboxPublisher struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutboxPublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxPublisher) types() []enums.OutboxEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]enums.OutboxEventType, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.EventType)
	}
	return out
}

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
}

func newTestEngine(repo *memRepo, pub *stubOutboxPublisher) *Engine {
	engine, err := NewEngine(repo, stubTxRunner{}, pub, testLogger(), nil, Config{
		MaxAttempts:     3,
		RefundTolerance: decimal.RequireFromString("0.01"),
		RefundWindow:    7 * 24 * time.Hour,
	})
	if err != nil {
		panic(err)
	}
	engine.now = func() time.Time { return testNow }
	return engine
}

func seedOrder(repo *memRepo, mutate func(o *models.Order)) models.Order {
	order := models.Order{
		ID:               uuid.New(),
		CustomerID:       uuid.New(),
		VendorID:         uuid.New(),
		OrderStatus:      enums.OrderStatusPlaced,
		AcceptanceStatus: enums.AcceptanceStatusPending,
		DeliveryStatus:   enums.DeliveryStatusPending,
		RefundStatus:     enums.RefundStatusNone,
		CancelledBy:      enums.CancelledByNone,
		PaymentMethod:    enums.PaymentMethodOnline,
		PaymentStatus:    enums.PaymentStatusCaptured,
		DeliveryService:  enums.DeliveryServiceShadowfax,
		DispatchStatus:   enums.DispatchStatusDispatched,
		Currency:         "inr",
		ItemsTotal:       decimal.RequireFromString("125.00"),
		DeliveryCharges:  decimal.RequireFromString("40.00"),
		TotalAmount:      decimal.RequireFromString("175.00"),
		OrderPlacedTime:  testNow.Add(-time.Hour),
		Version:          1,
	}
	if mutate != nil {
		mutate(&order)
	}
	repo.orders[order.ID] = order
	return order
}

func deliveryEvent(status enums.DeliveryStatus, at time.Time) DeliveryStatusEvent {
	return DeliveryStatusEvent{
		Provider:        enums.DeliveryServiceShadowfax,
		DeliveryOrderID: "sfx-1",
		EventID:         uuid.NewString(),
		ReportedStatus:  status,
		EventTimestamp:  at,
	}
}
