// Package cache is a small JSON value cache. Redis backs it in production;
// the no-op variant is used when no redis URL is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

type Cache interface {
	// Get unmarshals the cached value into dest. hit is false when the key is absent.
	Get(ctx context.Context, key string, dest interface{}) (hit bool, err error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key builds `service:<service>|<entity>|<field>:<value>`.
func Key(service, entity, field, value string) string {
	return fmt.Sprintf("service:%s|%s|%s:%s", service, entity, field, value)
}

type redisCache struct {
	*redis.Client
}

// New wraps an existing client.
func New(client *redis.Client) Cache {
	return &redisCache{client}
}

// Dial parses a redis:// URL and checks the server is reachable.
func Dial(ctx context.Context, url string) (Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return New(client), nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	str, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(str), dest); err != nil {
		// a value we cannot decode is as good as a miss; drop it
		c.Client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}

func (c *redisCache) Close() error {
	return c.Client.Close()
}

type nop struct{}

// Nop returns a cache that never hits.
func Nop() Cache { return nop{} }

func (nop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (nop) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nop) Delete(context.Context, ...string) error { return nil }
func (nop) Close() error { return nil }

// Describe names the backend for startup logs.
func Describe(c Cache) string {
	switch c := c.(type) {
	case *redisCache:
		return "redis " + strings.TrimSpace(c.Options().Addr)
	case nop:
		return "none"
	default:
		return fmt.Sprintf("%T", c)
	}
}
