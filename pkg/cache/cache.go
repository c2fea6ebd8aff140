package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is the short-lived key store behind the in-flight submission guard.
// Values are opaque strings; every key carries its own expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Add stores value only if key is absent and reports whether it did.
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and tunes the cache backend.
type Config struct {
	// "memory" or "redis"
	Type  string
	Redis RedisConfig
	Local LocalConfig
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LocalConfig struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
}

// DefaultConfig is an in-process cache with the local defaults filled in.
func DefaultConfig() Config {
	return Config{
		Type: "memory",
		Local: LocalConfig{
			DefaultExpiration: 5 * time.Minute,
			CleanupInterval:   10 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// NewCache builds the configured backend. A redis cache is pinged before it is returned.
func NewCache(cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory", "local":
		return NewLocal(cfg.Local), nil
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
