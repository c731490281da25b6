package exchange

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache memoises resolved rates. Implementations expire entries after a
// TTL and can be flushed when rate tables change.
type RateCache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, rate decimal.Decimal)
	Invalidate(ctx context.Context) error
}

// MemoryRateCache is a per-process cache.
type MemoryRateCache struct {
	c *gocache.Cache
}

func NewMemoryRateCache(ttl time.Duration) *MemoryRateCache {
	return &MemoryRateCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryRateCache) Get(_ context.Context, key string) (decimal.Decimal, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := v.(decimal.Decimal)
	return rate, ok
}

func (m *MemoryRateCache) Set(_ context.Context, key string, rate decimal.Decimal) {
	m.c.Set(key, rate, gocache.DefaultExpiration)
}

func (m *MemoryRateCache) Invalidate(context.Context) error {
	m.c.Flush()
	return nil
}

const redisRatePrefix = "ExchangeRate:"

// RedisRateCache shares resolved rates across instances.
type RedisRateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRateCache(client *redis.Client, ttl time.Duration) *RedisRateCache {
	return &RedisRateCache{client: client, ttl: ttl}
}

func (r *RedisRateCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	if r.client == nil {
		return decimal.Zero, false
	}
	val, err := r.client.Get(ctx, redisRatePrefix+key).Result()
	if err != nil {
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false
	}
	return rate, true
}

func (r *RedisRateCache) Set(ctx context.Context, key string, rate decimal.Decimal) {
	if r.client == nil {
		return
	}
	_ = r.client.Set(ctx, redisRatePrefix+key, rate.String(), r.ttl).Err()
}

func (r *RedisRateCache) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	iter := r.client.Scan(ctx, 0, redisRatePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
