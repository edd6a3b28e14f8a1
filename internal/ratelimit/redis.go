package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// RedisLimiter counts requests per key in fixed windows shared by every
// portal instance.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit requests per key per window
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit < 1 || window <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", limit, window)
	}
	return &RedisLimiter{
		client: client,
		prefix: "campus:rl:",
		limit:  int64(limit),
		window: window,
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)

// CheckLimit increments the counter for key and rejects once it passes the
// limit. The window starts on the first request.
func (l *RedisLimiter) CheckLimit(ctx context.Context, key string) error {
	redisKey := l.prefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if incr.Val() > l.limit {
		return errors.ErrRateLimitExceeded
	}
	return nil
}
