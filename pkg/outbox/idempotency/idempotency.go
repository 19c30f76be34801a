// Package idempotency remembers which order events a consumer has already
// handled so Pub/Sub redeliveries are acknowledged without side effects.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of the Redis client the ledger uses.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Ledger records processed event ids for a single consumer. Keys look like
// of:idempotency:evt:<consumer>:<event_id>.
type Ledger struct {
	store    Store
	consumer string
	ttl      time.Duration
	now      func() time.Time
}

func NewLedger(store Store, consumer string, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Ledger{store: store, consumer: consumer, ttl: ttl, now: time.Now}, nil
}

// Claim reserves eventID for this consumer. It returns false when an earlier
// delivery already claimed it. The stored value is the claim time.
func (l *Ledger) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	return l.store.SetNX(ctx, l.key(eventID), l.now().UTC().Format(time.RFC3339), l.ttl)
}

// Release drops a claim so the next redelivery is processed again.
func (l *Ledger) Release(ctx context.Context, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return errors.New("event id is required")
	}
	return l.store.Del(ctx, l.key(eventID))
}

func (l *Ledger) key(eventID uuid.UUID) string {
	return l.store.IdempotencyKey("evt:"+l.consumer, eventID.String())
}
