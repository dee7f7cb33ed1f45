package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribeflow/resilience/pkg/config"
	"github.com/scribeflow/resilience/pkg/errors"
)

// Client wraps the Redis client used for the shared cache and alert feed
type Client struct {
	client *redis.Client
	config *config.RedisConfig
}

// New creates a new Redis client and verifies connectivity
func New(cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("redis configuration is required")
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewConnectionError("failed to connect to redis").WithCause(err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis connection
func (r *Client) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *Client) Health(ctx context.Context) error {
	if r.client == nil {
		return errors.NewConnectionError("redis client is nil")
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.NewConnectionError("redis health check failed").WithCause(err)
	}

	return nil
}

// Client returns the underlying Redis client
func (r *Client) Client() *redis.Client {
	return r.client
}

// Config returns the Redis configuration
func (r *Client) Config() *config.RedisConfig {
	return r.config
}

// Stats returns Redis connection pool statistics
func (r *Client) Stats() *redis.PoolStats {
	return r.client.PoolStats()
}

// Set sets a key-value pair with optional expiration
func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return errors.NewInternalError("failed to set redis key").WithCause(err)
	}
	return nil
}

// Get gets a value by key
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", errors.NewNotFoundError("key")
		}
		return "", errors.NewInternalError("failed to get redis key").WithCause(err)
	}
	return val, nil
}

// Del deletes keys
func (r *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	count, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to delete redis keys").WithCause(err)
	}
	return count, nil
}

// Exists checks if keys exist
func (r *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	count, err := r.client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to check key existence").WithCause(err)
	}
	return count, nil
}

// LPush pushes elements to the left of a list
func (r *Client) LPush(ctx context.Context, key string, values ...interface{}) error {
	if err := r.client.LPush(ctx, key, values...).Err(); err != nil {
		return errors.NewInternalError("failed to push to redis list").WithCause(err)
	}
	return nil
}

// LTrim trims a list to the given range
func (r *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := r.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return errors.NewInternalError("failed to trim redis list").WithCause(err)
	}
	return nil
}

// LRange returns list elements in the given range
func (r *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	val, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, errors.NewInternalError("failed to read redis list").WithCause(err)
	}
	return val, nil
}

// LLen returns the length of a list
func (r *Client) LLen(ctx context.Context, key string) (int64, error) {
	length, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to get redis list length").WithCause(err)
	}
	return length, nil
}

// Expire sets a timeout on a key
func (r *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if err := r.client.Expire(ctx, key, expiration).Err(); err != nil {
		return errors.NewInternalError("failed to set redis key expiration").WithCause(err)
	}
	return nil
}

// TTL returns the time to live of a key
func (r *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to get redis key TTL").WithCause(err)
	}
	return ttl, nil
}
