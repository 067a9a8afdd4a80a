// Package redis wraps the shared Redis connection used for cross-process
// rate-limit counters.
//
// Several relaycache processes (CLI invocations, ingest watchers, embedding
// services) may call the same upstream APIs. Keeping the attempt counters in
// Redis makes the per-client budget global instead of per-process.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by relaycache.
const DefaultKeyPrefix = "relaycache"

// ClientConfig holds configuration for the Redis connection.
type ClientConfig struct {
	URL       string
	Password  string
	KeyPrefix string
}

// Client wraps a go-redis client with key namespacing.
type Client struct {
	client    *redis.Client
	keyPrefix string
}

// NewClient creates an unconnected client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Client{keyPrefix: cfg.KeyPrefix}
}

// Connect establishes connection to Redis.
func (c *Client) Connect(ctx context.Context, url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if password != "" {
		opts.Password = password
	}

	c.client = redis.NewClient(opts)

	// Verify connection
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		c.client = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// Key joins parts under the configured prefix: "relaycache:ratelimit:demo".
func (c *Client) Key(parts ...string) string {
	return c.keyPrefix + ":" + strings.Join(parts, ":")
}

// Raw returns the underlying go-redis client, nil before Connect.
func (c *Client) Raw() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
