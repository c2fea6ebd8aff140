package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client *redis.Client
}

// NewRedis connects to cfg.Addr and fails fast when the server is unreachable.
func NewRedis(cfg RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisCache{client: client}, nil
}

// RedisClient exposes the connection behind c so other components, such as
// the rate limiter store, can share it. ok is false for non-redis caches.
func RedisClient(c Cache) (client *redis.Client, ok bool) {
	rc, ok := c.(*redisCache)
	if !ok {
		return nil, false
	}
	return rc.client, true
}

func (rc *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Add maps to SET NX.
func (rc *redisCache) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := rc.client.SetNX(ctx, key, value, ttl).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return ok, err
}

func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

func (rc *redisCache) Close() error {
	return rc.client.Close()
}
