package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

// ConsumerName scopes the analytics worker's idempotency ledger.
const ConsumerName = "order_lifecycle_analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type ledger interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

type outcome string

const (
	outcomeHandled   outcome = "handled"
	outcomeDuplicate outcome = "duplicate"
	outcomeDropped   outcome = "dropped"
	outcomeRetry     outcome = "retry"
)

func (o outcome) ack() bool { return o != outcomeRetry }

// Service feeds order events from the analytics subscription into the
// lifecycle handler, once per event id.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	ledger       ledger
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, ledger ledger, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case ledger == nil:
		return nil, errors.New("idempotency ledger is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, ledger: ledger, logg: logg}, nil
}

// Run blocks receiving messages until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg).ack() {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, eventID, err := decodeEnvelope(msg)
	if err != nil {
		// malformed messages never get better on redelivery
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping invalid order event")
		return outcomeDropped
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":    envelope.EventID,
		"event_type":  envelope.EventType,
		"order_id":    envelope.AggregateID,
		"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	claimed, err := s.ledger.Claim(ctx, eventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency claim failed", err)
		return outcomeRetry
	}
	if !claimed {
		s.logg.Info(ctx, "order event already processed")
		return outcomeDuplicate
	}

	if err := s.handler.Handle(ctx, envelope); err != nil {
		if errors.Is(err, router.ErrUnsupportedEventType) || errors.Is(err, registry.ErrNoDecoder) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order event not tracked by analytics")
			return outcomeDropped
		}
		s.logg.Error(ctx, "analytics handler failed", err)
		if relErr := s.ledger.Release(ctx, eventID); relErr != nil {
			s.logg.Error(ctx, "idempotency release failed", relErr)
		}
		return outcomeRetry
	}

	s.logg.Debug(ctx, "order event handled")
	return outcomeHandled
}

// decodeEnvelope merges the stored payload envelope with the routing
// attributes the outbox publisher stamps on each message.
func decodeEnvelope(msg *gcppubsub.Message) (types.Envelope, uuid.UUID, error) {
	stored, err := outbox.ParseEnvelope(msg.Data)
	if err != nil {
		return types.Envelope{}, uuid.Nil, err
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, uuid.Nil, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attr("event_id")
	}
	if rawID == "" {
		return types.Envelope{}, uuid.Nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}

	return types.Envelope{
		EventID:       rawID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    occurredAt.UTC(),
		Actor:         stored.Actor,
		Payload:       stored.Data,
	}, eventID, nil
}
