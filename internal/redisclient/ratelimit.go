package redisclient

import (
	"context"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Allow counts one request against key in a fixed window and reports whether
// it is within limit. Redis errors let the request through.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if c == nil || limit <= 0 {
		return true
	}

	result, err := c.rateLimitScript.Run(ctx, c.rdb, []string{"ratelimit:" + key}, window.Milliseconds()).Result()
	if err != nil {
		c.logger.Warn("Rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
		util.RateLimitDecisionsTotal.WithLabelValues("error").Inc()
		return true
	}

	count, ok := result.(int64)
	if !ok {
		c.logger.Warn("Unexpected rate limit script result", zap.Any("result", result))
		util.RateLimitDecisionsTotal.WithLabelValues("error").Inc()
		return true
	}

	if count > int64(limit) {
		util.RateLimitDecisionsTotal.WithLabelValues("limited").Inc()
		return false
	}

	util.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
	return true
}
