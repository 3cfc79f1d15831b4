package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a JSON value cache on top of Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL and pings it.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	slog.Info("Redis connection established")
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get decodes the cached value into dest. A miss returns redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetOrSet returns the cached value for key, or calls fn and caches its
// result. Cache failures never fail the call.
func GetOrSet[T any](ctx context.Context, c *RedisCache, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var result T

	err := c.Get(ctx, key, &result)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("Cache read failed", "key", key, "error", err)
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	if err := c.Set(ctx, key, result, expiration); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
	return result, nil
}
