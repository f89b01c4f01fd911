package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "guardline:ratelimit:"

// RateLimiter implements a sliding-window rate limiter backed by a Redis
// sorted set: one member per request, scored by timestamp, trimmed to the
// window on each check.
type RateLimiter struct {
	client *Client
	logger *zap.Logger

	limit  int
	window time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per window.
func NewRateLimiter(client *Client, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the request identified by key is within the limit.
// Fails open: a Redis error never blocks an SOS trigger.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-rl.window)
	k := rateLimitKeyPrefix + key

	pipe := rl.client.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, k)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("key", key), zap.Error(err))
		return true, nil
	}

	if countCmd.Val() >= int64(rl.limit) {
		return false, nil
	}

	member := uuid.NewString()
	add := rl.client.rdb.TxPipeline()
	add.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	add.Expire(ctx, k, rl.window)
	if _, err := add.Exec(ctx); err != nil {
		rl.logger.Warn("failed to record rate limit entry",
			zap.String("key", key), zap.Error(err))
	}

	return true, nil
}

// Remaining returns how many requests the key has left in the current window.
func (rl *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	k := rateLimitKeyPrefix + key
	windowStart := time.Now().Add(-rl.window)

	pipe := rl.client.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, k)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count rate limit entries: %w", err)
	}

	remaining := rl.limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
