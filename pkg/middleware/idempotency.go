package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"SOSBeacon/pkg/cache"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 128

type IdempotencyConfig struct {
	HeaderName string        // request header carrying the key
	TTL        time.Duration // upper bound on how long a key stays claimed
	Store      cache.Cache
	Prefix     string
}

// IdempotencyMiddleware guards concurrent requests sharing an Idempotency-Key.
// The key is claimed for the lifetime of the request and released afterwards;
// replays after completion are answered by the handler from persisted state.
// Requests without a key pass through untouched.
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = constants.IdempotencyHeader
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	store := cfg.Store
	if store == nil {
		store = cache.NewLocal(cache.LocalConfig{DefaultExpiration: cfg.TTL, CleanupInterval: time.Minute})
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			response.Fail(c, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}

		ctx := c.Request.Context()
		claimed, err := store.Add(ctx, cfg.Prefix+key, c.Request.URL.Path, cfg.TTL)
		if err != nil {
			// cache outage must not block alert intake; the unique column still dedups
			logger.Warn("idempotency store unavailable", zap.Error(err))
		} else if !claimed {
			c.Header("Retry-After", "1")
			response.Fail(c, http.StatusConflict, "A request with this Idempotency-Key is in progress")
			return
		}

		c.Set(constants.IdempotencyField, key)
		defer func() {
			if claimed {
				_ = store.Delete(context.Background(), cfg.Prefix+key)
			}
		}()
		c.Next()
	}
}
