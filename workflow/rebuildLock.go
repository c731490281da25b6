package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// RebuildLocker gives one caller at a time the right to rebuild a ledger key.
// A key that is already held returns ErrRebuildInProgress.
type RebuildLocker interface {
	TryLock(ctx context.Context, key string) (release func(context.Context), err error)
}

// RedisRebuildLocker excludes rebuilds across instances.
type RedisRebuildLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisRebuildLocker(client *redislock.Client, ttl time.Duration) *RedisRebuildLocker {
	return &RedisRebuildLocker{client: client, ttl: ttl}
}

func (l *RedisRebuildLocker) TryLock(ctx context.Context, key string) (func(context.Context), error) {
	lock, err := l.client.Obtain(ctx, "lock:ledger_rebuild:"+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrRebuildInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain rebuild lock %s: %w", key, err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

// LocalRebuildLocker excludes rebuilds inside one process. Used when Redis
// is not configured and by the batch CLI.
type LocalRebuildLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalRebuildLocker() *LocalRebuildLocker {
	return &LocalRebuildLocker{held: make(map[string]struct{})}
}

func (l *LocalRebuildLocker) TryLock(_ context.Context, key string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRebuildInProgress, key)
	}
	l.held[key] = struct{}{}
	return func(context.Context) {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
