package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"storefront/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

// Client wraps Redis for the optional accelerators: a read cache and a rate
// limiter. Every method fails open and is safe on a nil *Client, which is how
// a deployment without Redis is represented.
type Client struct {
	rdb             *redis.Client
	rateLimitScript *redis.Script
	logger          *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an already configured redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:             rdb,
		rateLimitScript: redis.NewScript(rateLimitScript),
		logger:          util.GetLogger().Named("redis"),
	}
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("redis disabled")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// ProductKey is the cache key of a catalog product.
func ProductKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

// RoleKey is the cache key of a user's role.
func RoleKey(userID string) string {
	return "role:" + userID
}
