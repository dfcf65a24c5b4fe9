package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kaiede/RPiLight-sub000/pkg/config"
)

// goRedisClient implements Client with go-redis. The agent writes a handful
// of keys a second at most, so the pool stays small.
type goRedisClient struct {
	client  *redis.Client
	addr    string
	logger  *slog.Logger
	reached atomic.Bool
}

// NewClient creates a client for the configured server. No connection is
// made until the first command.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	return &goRedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddress(),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
			PoolSize:     4,
		}),
		addr:   cfg.RedisAddress(),
		logger: logger.With("component", "redis"),
	}
}

func (r *goRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *goRedisClient) HSetWithTTL(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set hash %s: %w", key, err)
	}
	return nil
}

func (r *goRedisClient) Del(ctx context.Context, keys ...string) error {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys %v: %w", keys, err)
	}
	return nil
}

// Ping checks the server. Reachability changes are logged once per transition.
func (r *goRedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		if r.reached.Swap(false) {
			r.logger.Warn("Lost connection to Redis", "address", r.addr, "error", err)
		}
		return fmt.Errorf("redis ping %s: %w", r.addr, err)
	}
	if !r.reached.Swap(true) {
		r.logger.Info("Connected to Redis", "address", r.addr)
	}
	return nil
}

func (r *goRedisClient) Close() error {
	r.logger.Info("Closing Redis connection")
	return r.client.Close()
}
