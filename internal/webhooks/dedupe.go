// Package webhooks holds helpers shared by the inbound provider webhooks.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DedupeStore is the slice of the redis client used to dedupe callbacks.
type DedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, eventKey string) string
}

// DedupeGuard marks provider events as seen so redeliveries are skipped.
type DedupeGuard struct {
	store DedupeStore
	ttl   time.Duration
}

func NewDedupeGuard(store DedupeStore, ttl time.Duration) (*DedupeGuard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &DedupeGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark claims the key and reports whether it had already been seen.
func (g *DedupeGuard) CheckAndMark(ctx context.Context, provider, eventKey string) (bool, error) {
	if strings.TrimSpace(eventKey) == "" {
		return false, errors.New("event key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(provider, eventKey), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook dedupe key: %w", err)
	}
	return !set, nil
}

// Release forgets the key so a redelivery is processed again.
func (g *DedupeGuard) Release(ctx context.Context, provider, eventKey string) error {
	if strings.TrimSpace(eventKey) == "" {
		return errors.New("event key is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(provider, eventKey))
}
