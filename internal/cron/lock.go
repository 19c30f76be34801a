package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/instance"
)

const defaultLockTTL = 10 * time.Minute

// Locker hands out exclusive, expiring leases on named jobs so only one
// cron worker runs a job at a time.
type Locker interface {
	Acquire(ctx context.Context, name string) (*Lease, bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	LockKey(name string) string
}

// RedisLocker implements Locker with SETNX plus a compare-and-delete release.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
}

// Lease is one held lock.
type Lease struct {
	store lockStore
	key   string
	owner string
}

func NewRedisLocker(store lockStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (*Lease, bool, error) {
	if name == "" {
		return nil, false, errors.New("lock name is required")
	}
	key := l.store.LockKey("cron:" + name)
	owner := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{store: l.store, key: key, owner: owner}, true, nil
}

// Release frees the lock unless it expired and another worker took it over.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == "" {
		return nil
	}
	if _, err := l.store.ReleaseLock(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}
