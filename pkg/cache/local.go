package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type local struct {
	c *gocache.Cache
}

// NewLocal keeps keys in process memory via go-cache.
func NewLocal(cfg LocalConfig) Cache {
	if cfg.DefaultExpiration <= 0 {
		cfg.DefaultExpiration = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &local{c: gocache.New(cfg.DefaultExpiration, cfg.CleanupInterval)}
}

func (l *local) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := l.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

// Add fails inside go-cache when an unexpired item exists.
func (l *local) Add(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	return l.c.Add(key, value, ttl) == nil, nil
}

func (l *local) Delete(_ context.Context, key string) error {
	l.c.Delete(key)
	return nil
}

func (l *local) Close() error { return nil }
