package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter implements a fixed-window counter per client and scope.
// A Redis outage never blocks traffic: limiter errors are logged and
// the request is allowed through.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	window time.Duration
}

func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		window: time.Minute,
	}
}

// Allow counts one hit for the client in the current window and reports
// whether it stays within limit.
func (l *RateLimiter) Allow(ctx context.Context, scope, clientID string, limit int) bool {
	if l.client == nil || limit <= 0 {
		return true
	}

	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, clientID, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("scope", scope),
			zap.Error(err))
		return true
	}

	return incr.Val() <= int64(limit)
}
