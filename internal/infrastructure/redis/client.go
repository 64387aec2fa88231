// Package redis connects to the Redis instance backing the balance cache and
// idempotency keys.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options tunes the client beyond what the URL carries.
type Options struct {
	DialTimeout time.Duration
	PoolSize    int
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, redisURL string, o Options) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if o.DialTimeout > 0 {
		opts.DialTimeout = o.DialTimeout
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Checker reports whether Redis is reachable.
type Checker struct {
	client *redis.Client
}

// NewChecker creates a readiness checker for client.
func NewChecker(client *redis.Client) *Checker {
	return &Checker{client: client}
}

// Name implements the readiness check interface.
func (c *Checker) Name() string { return "redis" }

// Check pings Redis.
func (c *Checker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
