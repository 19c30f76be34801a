package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	data := mustMarshal(t, payloads.OrderPlacedEvent{
		OrderSnapshot: payloads.OrderSnapshot{
			OrderID:     orderID,
			OrderStatus: enums.OrderStatusPlaced,
			TotalAmount: decimal.RequireFromString("175.00"),
		},
		PaymentMethod: enums.PaymentMethodOnline,
		ItemCount:     2,
	})

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelopeJSON(t, 1, data),
	})
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, 2, payload.ItemCount)
	assert.True(t, payload.TotalAmount.Equal(decimal.NewFromInt(175)))
}

func TestRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range enums.OutboxEventTypes() {
		desc, ok := reg.entries[eventType]
		require.True(t, ok, "event type %s not registered", eventType)
		assert.Equal(t, "orders-topic", desc.Topic)
		assert.NotNil(t, desc.newPayload())
	}
	_, isLifecycle := reg.entries[enums.EventOrderCancelled].newPayload().(*payloads.OrderLifecycleEvent)
	assert.True(t, isLifecycle)
	_, isDispatch := reg.entries[enums.EventOrderDispatchFailed].newPayload().(*payloads.OrderDispatchEvent)
	assert.True(t, isDispatch)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_teleported"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderAccepted,
			AggregateType: enums.OutboxAggregateType("payment_session"),
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			Payload:       envelopeJSON(t, 1, []byte(`{}`)),
		},
		"null data": {
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte("null")),
		},
		"future envelope": {
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, outbox.EnvelopeVersion+1, []byte(`{}`)),
		},
		"garbage": {
			EventType:     enums.EventOrderReady,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			assert.ErrorAs(t, err, &nonRetry)
		})
	}
}

func TestNewEventRegistryRequiresOrdersTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "  "})
	assert.Error(t, err)
}

func TestNonRetryableErrorUnwraps(t *testing.T) {
	cause := errors.New("bad json")
	err := nonRetryable("decode: %w", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "decode: bad json", err.Error())
	assert.Equal(t, "non-retryable error", NonRetryableError{}.Error())
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func envelopeJSON(t *testing.T, version int, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}
