package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

type stubHandler struct {
	calls    int
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.calls++
	h.envelope = envelope
	return h.err
}

type stubLedger struct {
	seen     map[uuid.UUID]bool
	claimErr error
	released []uuid.UUID
}

func (l *stubLedger) Claim(_ context.Context, eventID uuid.UUID) (bool, error) {
	if l.claimErr != nil {
		return false, l.claimErr
	}
	if l.seen == nil {
		l.seen = map[uuid.UUID]bool{}
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

func (l *stubLedger) Release(_ context.Context, eventID uuid.UUID) error {
	l.released = append(l.released, eventID)
	delete(l.seen, eventID)
	return nil
}

func newTestService(handler Handler, ledger ledger) *Service {
	return &Service{
		handler: handler,
		ledger:  ledger,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

func orderMessage(t *testing.T, eventType string, stored outbox.PayloadEnvelope) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: data,
		Attributes: map[string]string{
			"event_type":     eventType,
			"aggregate_type": "order",
			"aggregate_id":   "7f0c7c55-9a7e-4a53-9b3f-1f3b5f0d6c11",
		},
	}
}

func cancelledMessage(t *testing.T) *gcppubsub.Message {
	return orderMessage(t, "order_cancelled", outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"7f0c7c55-9a7e-4a53-9b3f-1f3b5f0d6c11"}`),
	})
}

func TestProcessHandlesEventOnce(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(handler, &stubLedger{})
	msg := cancelledMessage(t)

	require.Equal(t, outcomeHandled, svc.process(context.Background(), msg))
	require.Equal(t, outcomeDuplicate, svc.process(context.Background(), msg))
	require.Equal(t, 1, handler.calls)
	require.Equal(t, enums.EventOrderCancelled, handler.envelope.EventType)
}

func TestProcessHandlerFailureReleasesClaim(t *testing.T) {
	handler := &stubHandler{err: errors.New("bigquery unavailable")}
	ledger := &stubLedger{}
	svc := newTestService(handler, ledger)
	msg := cancelledMessage(t)

	got := svc.process(context.Background(), msg)
	require.Equal(t, outcomeRetry, got)
	require.False(t, got.ack())
	require.Len(t, ledger.released, 1)

	handler.err = nil
	require.Equal(t, outcomeHandled, svc.process(context.Background(), msg))
	require.Equal(t, 2, handler.calls)
}

func TestProcessDropsUntrackedEvents(t *testing.T) {
	for _, err := range []error{router.ErrUnsupportedEventType, registry.ErrNoDecoder} {
		ledger := &stubLedger{}
		svc := newTestService(&stubHandler{err: err}, ledger)
		require.Equal(t, outcomeDropped, svc.process(context.Background(), cancelledMessage(t)))
		require.Empty(t, ledger.released)
	}
}

func TestProcessClaimErrorRetries(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(handler, &stubLedger{claimErr: errors.New("redis down")})
	require.Equal(t, outcomeRetry, svc.process(context.Background(), cancelledMessage(t)))
	require.Zero(t, handler.calls)
}

func TestProcessDropsMalformedMessages(t *testing.T) {
	handler := &stubHandler{}
	ledger := &stubLedger{}
	svc := newTestService(handler, ledger)

	cases := map[string]*gcppubsub.Message{
		"bad json":       {Data: []byte("not json")},
		"unknown type":   orderMessage(t, "ad_click", outbox.PayloadEnvelope{EventID: uuid.NewString()}),
		"missing id":     orderMessage(t, "order_ready", outbox.PayloadEnvelope{}),
		"non uuid event": orderMessage(t, "order_ready", outbox.PayloadEnvelope{EventID: "evt-1"}),
	}
	for name, msg := range cases {
		require.Equal(t, outcomeDropped, svc.process(context.Background(), msg), name)
	}
	require.Zero(t, handler.calls)
	require.Empty(t, ledger.seen)
}

func TestDecodeEnvelopeCarriesActorAndFallbacks(t *testing.T) {
	userID := uuid.New()
	eventID := uuid.New()
	created := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)

	msg := orderMessage(t, "order_rejected", outbox.PayloadEnvelope{
		Version: 1,
		Actor:   &outbox.ActorRef{UserID: &userID, Role: "vendor"},
		Data:    json.RawMessage(`{}`),
	})
	msg.Attributes["event_id"] = eventID.String()
	msg.Attributes["created_at"] = created.Format(time.RFC3339Nano)

	env, id, err := decodeEnvelope(msg)
	require.NoError(t, err)
	require.Equal(t, eventID, id)
	require.Equal(t, enums.EventOrderRejected, env.EventType)
	require.Equal(t, enums.AggregateOrder, env.AggregateType)
	require.Equal(t, created, env.OccurredAt)
	require.Equal(t, 1, env.Version)
	require.NotNil(t, env.Actor)
	require.Equal(t, "vendor", env.Actor.Role)
	require.Equal(t, userID, *env.Actor.UserID)
}

func TestDecodeEnvelopeRejectsNewerVersion(t *testing.T) {
	msg := orderMessage(t, "order_completed", outbox.PayloadEnvelope{
		Version: outbox.EnvelopeVersion + 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{}`),
	})

	_, _, err := decodeEnvelope(msg)
	require.ErrorContains(t, err, "not supported")
}
