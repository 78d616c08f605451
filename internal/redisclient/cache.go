package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// GetJSON decodes the cached value at key into dst. Any failure, including a
// disabled cache, is reported as a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache get failed", zap.String("key", key), zap.Error(err))
			util.CacheRequestsTotal.WithLabelValues("error").Inc()
			return false
		}
		util.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("Cache entry undecodable", zap.String("key", key), zap.Error(err))
		util.CacheRequestsTotal.WithLabelValues("error").Inc()
		return false
	}

	util.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return true
}

// SetJSON stores v at key. Failures are logged and dropped.
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Cache value unencodable", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("Cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete evicts keys. Failures are logged and dropped; entries then age out by TTL.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
