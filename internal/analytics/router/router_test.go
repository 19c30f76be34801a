package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	env := types.Envelope{
		EventType: enums.OutboxEventType("vendor_onboarded"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterUnknownVersion(t *testing.T) {
	router, writer := newTestRouter(t)
	env := types.Envelope{
		EventType: enums.EventOrderAccepted,
		Version:   7,
		Payload:   []byte(`{}`),
	}
	if err := router.Handle(context.Background(), env); err == nil {
		t.Fatal("expected error for unregistered version")
	}
	if len(writer.rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(writer.rows))
	}
}

func TestRouterWritesCancellationRow(t *testing.T) {
	router, writer := newTestRouter(t)
	snap := testSnapshot(t)
	snap.OrderStatus = enums.OrderStatusCancelled
	snap.RefundStatus = enums.RefundStatusPending
	occurred := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)
	adminID := uuid.New()

	env := envelopeFor(t, enums.EventOrderCancelled, payloads.OrderLifecycleEvent{
		OrderSnapshot: snap,
		Action:        enums.ActionCancel,
		Actor:         enums.ActorAdmin,
		CancelledBy:   enums.CancelledByAdmin,
		Reason:        "vendor closed early",
		OccurredAt:    occurred,
	})
	env.Actor = &outbox.ActorRef{UserID: &adminID, Role: "admin"}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(writer.rows))
	}
	row := writer.rows[0]
	if row.OrderID != snap.OrderID.String() {
		t.Fatalf("unexpected order id %s", row.OrderID)
	}
	if row.OrderStatus != "cancelled" || row.RefundStatus != "pending" {
		t.Fatalf("unexpected statuses %s/%s", row.OrderStatus, row.RefundStatus)
	}
	if row.Action == nil || *row.Action != enums.ActionCancel.String() {
		t.Fatalf("unexpected action %v", row.Action)
	}
	if row.ActorUserID == nil || *row.ActorUserID != adminID.String() {
		t.Fatalf("unexpected actor user %v", row.ActorUserID)
	}
	if row.Reason == nil || *row.Reason != "vendor closed early" {
		t.Fatalf("unexpected reason %v", row.Reason)
	}
	if !row.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected occurred_at %v", row.OccurredAt)
	}
	if row.TotalMinor != 26150 {
		t.Fatalf("expected total 26150, got %d", row.TotalMinor)
	}
	if !row.Payload.Valid {
		t.Fatal("expected payload json")
	}
}

func TestRouterWritesRefundSplit(t *testing.T) {
	router, writer := newTestRouter(t)
	snap := testSnapshot(t)
	env := envelopeFor(t, enums.EventOrderRefundSettled, payloads.OrderRefundSettledEvent{
		OrderSnapshot:      snap,
		CustomerAmount:     decimal.RequireFromString("200.00"),
		VendorPayoutAmount: decimal.RequireFromString("41.50"),
		DeliveryCharges:    decimal.RequireFromString("20"),
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := writer.rows[0]
	if *row.RefundCustomerMinor != 20000 || *row.VendorPayoutMinor != 4150 || *row.RefundDeliveryMinor != 2000 {
		t.Fatalf("unexpected split %d/%d/%d", *row.RefundCustomerMinor, *row.VendorPayoutMinor, *row.RefundDeliveryMinor)
	}
}

func TestRouterWritesDispatchRow(t *testing.T) {
	router, writer := newTestRouter(t)
	deliveryOrderID := "sfx-991"
	env := envelopeFor(t, enums.EventOrderDispatched, payloads.OrderDispatchEvent{
		OrderSnapshot:   testSnapshot(t),
		DeliveryOrderID: &deliveryOrderID,
		Attempts:        2,
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := writer.rows[0]
	if row.DeliveryOrderID == nil || *row.DeliveryOrderID != "sfx-991" {
		t.Fatalf("unexpected delivery order id %v", row.DeliveryOrderID)
	}
	if row.DispatchAttempts == nil || *row.DispatchAttempts != 2 {
		t.Fatalf("unexpected attempts %v", row.DispatchAttempts)
	}
	if row.DeliveryService == nil || *row.DeliveryService != "shadowfax" {
		t.Fatalf("unexpected delivery service %v", row.DeliveryService)
	}
}

func TestRouterWriterError(t *testing.T) {
	router, writer := newTestRouter(t)
	writer.err = errors.New("bigquery down")
	env := envelopeFor(t, enums.EventOrderRated, payloads.OrderRatedEvent{OrderSnapshot: testSnapshot(t), Rating: 4})

	if err := router.Handle(context.Background(), env); err == nil {
		t.Fatal("expected writer error")
	}
}

func newTestRouter(t *testing.T) (*Router, *recordingWriter) {
	t.Helper()
	writer := &recordingWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

func testSnapshot(t *testing.T) payloads.OrderSnapshot {
	t.Helper()
	return payloads.OrderSnapshot{
		OrderID:          uuid.New(),
		CustomerID:       uuid.New(),
		VendorID:         uuid.New(),
		OrderStatus:      enums.OrderStatusPlaced,
		AcceptanceStatus: enums.AcceptanceStatusAccepted,
		DeliveryStatus:   enums.DeliveryStatusPending,
		PaymentStatus:    enums.PaymentStatusCaptured,
		RefundStatus:     enums.RefundStatusNone,
		DeliveryService:  enums.DeliveryServiceShadowfax,
		TotalAmount:      decimal.RequireFromString("261.50"),
		Currency:         "INR",
		Version:          3,
	}
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}
}

type recordingWriter struct {
	rows []types.OrderLifecycleRow
	err  error
}

func (w *recordingWriter) Insert(_ context.Context, row types.OrderLifecycleRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, row)
	return nil
}
