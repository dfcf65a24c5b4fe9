package redis

import (
	"context"
	"time"
)

// Writer is the write-only surface the status mirror needs.
type Writer interface {
	// Set stores value under key; a zero ttl never expires
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// HSetWithTTL writes hash fields and refreshes the key TTL atomically
	HSetWithTTL(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error
}

// Client is a Redis connection
type Client interface {
	Writer
	Ping(ctx context.Context) error
	Close() error
}
