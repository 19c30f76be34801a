package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// ErrNoDecoder is returned when an event type/version pair has no decoder.
var ErrNoDecoder = errors.New("decoder not registered")

// Decoder turns a raw envelope payload into its typed form.
type Decoder func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps versioned order event payloads to decoders. Safe for
// concurrent use by subscriber goroutines.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]Decoder)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType: eventType, version: version}] = decoder
}

// RegisterJSON registers a decoder that unmarshals into a fresh *T for each
// of the given event types.
func RegisterJSON[T any](r *DecoderRegistry, version int, eventTypes ...enums.OutboxEventType) {
	decode := func(payload json.RawMessage) (any, error) {
		target := new(T)
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
	for _, eventType := range eventTypes {
		r.Register(eventType, version, decode)
	}
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return decoder(payload)
}

// EventTypes lists the registered event types in sorted order.
func (r *DecoderRegistry) EventTypes() []enums.OutboxEventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[enums.OutboxEventType]struct{}, len(r.decoders))
	out := make([]enums.OutboxEventType, 0, len(r.decoders))
	for key := range r.decoders {
		if _, ok := seen[key.eventType]; ok {
			continue
		}
		seen[key.eventType] = struct{}{}
		out = append(out, key.eventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
