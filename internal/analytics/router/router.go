package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

const payloadVersion = 1

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	Insert(ctx context.Context, row types.OrderLifecycleRow) error
}

// Router decodes order events and writes one lifecycle row per event.
type Router struct {
	decoders *registry.DecoderRegistry
	writer   Writer
	logg     *logger.Logger
}

// NewRouter registers a decoder for every order event type.
func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoderRegistry()
	registry.RegisterJSON[payloads.OrderPlacedEvent](decoders, payloadVersion, enums.EventOrderPlaced)
	registry.RegisterJSON[payloads.OrderLifecycleEvent](decoders, payloadVersion,
		enums.EventOrderAccepted,
		enums.EventOrderRejected,
		enums.EventOrderReady,
		enums.EventOrderDeliveryStatusChanged,
		enums.EventOrderCompleted,
		enums.EventOrderCancelled,
		enums.EventOrderRefundPending,
		enums.EventOrderPaymentUpdated,
	)
	registry.RegisterJSON[payloads.OrderRefundSettledEvent](decoders, payloadVersion, enums.EventOrderRefundSettled)
	registry.RegisterJSON[payloads.OrderRatedEvent](decoders, payloadVersion, enums.EventOrderRated)
	registry.RegisterJSON[payloads.OrderDispatchEvent](decoders, payloadVersion, enums.EventOrderDispatched, enums.EventOrderDispatchFailed)

	return &Router{decoders: decoders, writer: writer, logg: logg}, nil
}

// Handle decodes the envelope payload and inserts the matching row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.EventType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version == 0 {
		version = payloadVersion
	}

	payload, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row, err := BuildRow(envelope, payload)
	if err != nil {
		return err
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"order_id":   row.OrderID,
	})
	if err := r.writer.Insert(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert order lifecycle row", err)
		return err
	}
	r.logg.Debug(logCtx, "order lifecycle row buffered")
	return nil
}
