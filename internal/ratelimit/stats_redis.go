package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats records admission decisions to redis so totals survive restarts
// and aggregate across instances. Failures are logged and dropped; stats must
// never block or fail a request.
type RedisStats struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStats creates a RedisStats writing under the given key prefix.
// Per-key counters expire after ttl; a ttl of 0 keeps them forever.
func NewRedisStats(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStats {
	if prefix == "" {
		prefix = "embedgate:ratelimit"
	}
	return &RedisStats{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Record implements StatsRecorder.
func (r *RedisStats) Record(ctx context.Context, key string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	counter := fmt.Sprintf("%s:%s:%s", r.prefix, key, outcome)

	pipe := r.rdb.Pipeline()
	pipe.Incr(ctx, counter)
	if r.ttl > 0 {
		pipe.Expire(ctx, counter, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("failed to record rate limit stats", "key", key, "error", err)
	}
}

// Counts returns the recorded totals for one key.
func (r *RedisStats) Counts(ctx context.Context, key string) (Counts, error) {
	allowed, err := r.rdb.Get(ctx, fmt.Sprintf("%s:%s:allowed", r.prefix, key)).Int64()
	if err != nil && err != redis.Nil {
		return Counts{}, fmt.Errorf("reading allowed count: %w", err)
	}
	denied, err := r.rdb.Get(ctx, fmt.Sprintf("%s:%s:denied", r.prefix, key)).Int64()
	if err != nil && err != redis.Nil {
		return Counts{}, fmt.Errorf("reading denied count: %w", err)
	}
	return Counts{Allowed: allowed, Denied: denied}, nil
}
