// Package infra provides concrete infrastructure adapters for Redis.
//
// The adapter wraps go-redis v9 and backs the per-case run locks, the
// outbound rate limiters, and the copilot conversation cache. When
// Redis is not reachable the callers fall back to in-process
// equivalents in main.go.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter wraps go-redis v9 behind the small surfaces the rest of
// the code depends on.
type RedisAdapter struct {
	rdb *redis.Client
}

// NewRedisAdapter connects and pings. The caller decides whether a
// connection failure degrades to in-memory behaviour.
func NewRedisAdapter(addr, password string, db int) (*RedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return &RedisAdapter{rdb: rdb}, nil
}

// Close shuts down the underlying redis client.
func (a *RedisAdapter) Close() error {
	return a.rdb.Close()
}

// Healthy reports whether Redis answers a ping.
func (a *RedisAdapter) Healthy(ctx context.Context) bool {
	return a.rdb.Ping(ctx).Err() == nil
}

// =============================================================================
// Per-case run locks
// =============================================================================

// AcquireLock takes a named lock with a TTL. Returns false when another
// holder has it.
func (a *RedisAdapter) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return a.rdb.SetNX(ctx, "lock:"+key, 1, ttl).Result()
}

// ReleaseLock drops a named lock.
func (a *RedisAdapter) ReleaseLock(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, "lock:"+key).Err()
}

// =============================================================================
// Fixed-window rate limiting
// =============================================================================

// RateLimiter is a redis-backed fixed-window limiter shared across
// processes. It satisfies the Limiter interfaces in enrich, copilot
// and middleware.
type RateLimiter struct {
	adapter   *RedisAdapter
	perMinute int
}

func (a *RedisAdapter) NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{adapter: a, perMinute: perMinute}
}

// Allow consumes one slot in the current minute window for the key.
// Redis errors fail open: an unreachable limiter must not take the
// feature down with it.
func (l *RateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	window := time.Now().UTC().Format("200601021504")
	redisKey := fmt.Sprintf("ratelimit:%s:%s", key, window)

	count, err := l.adapter.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	if count == 1 {
		l.adapter.rdb.Expire(ctx, redisKey, 2*time.Minute)
	}
	return count <= int64(l.perMinute)
}

// =============================================================================
// Small KV surface (copilot conversation cache)
// =============================================================================

func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.rdb.Set(ctx, key, value, ttl).Err()
}

func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (a *RedisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.rdb.Del(ctx, keys...).Err()
}
