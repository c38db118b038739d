package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 10 * time.Minute

// Lock elects the single worker allowed to run a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseStore renews and drops the lease only while the caller's token still
// holds it; each check-and-act is a single redis script.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendIfOwner(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	DeleteIfOwner(ctx context.Context, key, token string) (bool, error)
}

// RedisLock is a leader lease keyed by a per-process token. A worker that
// already holds the lease renews it instead of competing for it again.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
	held  bool
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock: redis store required")
	case key == "":
		return nil, errors.New("cron lock: key required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl, token: uuid.NewString()}, nil
}

// Acquire claims the lease, or extends it when this process already owns it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	claimed, err := l.store.SetNX(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("cron lock claim: %w", err)
	}
	if claimed {
		l.held = true
		return true, nil
	}

	renewed, err := l.store.ExtendIfOwner(ctx, l.key, l.token, l.ttl)
	if err != nil {
		l.held = false
		return false, fmt.Errorf("cron lock renew: %w", err)
	}
	l.held = renewed
	return renewed, nil
}

// Release drops the lease if this process still owns it. A lease that
// expired or moved to another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.store.DeleteIfOwner(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("cron lock release: %w", err)
	}
	return nil
}
