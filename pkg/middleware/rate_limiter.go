package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

const defaultRate = "100-15M"

// RateLimiterConfig configures the limiter.
//
// Rate uses the limiter format, e.g. "100-15M" or "30-M".
// KeyBy is "ip" (default) or "user"; anonymous callers always fall back to ip.
// Trusted lists CIDRs that are never limited, e.g. an internal gateway.
type RateLimiterConfig struct {
	Rate    string
	KeyBy   string
	Trusted []string
	Message string
}

// MetricsObserver receives allow and deny decisions.
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

// RateLimiter applies one rate to every route it is mounted on.
type RateLimiter struct {
	cfg      RateLimiterConfig
	lim      *limiter.Limiter
	trusted  []*net.IPNet
	observer MetricsObserver
}

// NewRateLimiter uses an in-memory store when store is nil. An unparsable
// rate falls back to 100-15M.
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = defaultRate
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		logger.Warn("invalid RATE_LIMIT, using default", zap.String("rate", cfg.Rate), zap.Error(err))
		rate, _ = limiter.NewRateFromFormatted(defaultRate)
	}
	if cfg.Message == "" {
		cfg.Message = "Too many requests from this IP, please try again later."
	}
	l := &RateLimiter{cfg: cfg, lim: limiter.New(store, rate)}
	for _, c := range cfg.Trusted {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			l.trusted = append(l.trusted, n)
		}
	}
	return l
}

// WithObserver must be called before the middleware serves traffic.
func (l *RateLimiter) WithObserver(o MetricsObserver) *RateLimiter {
	l.observer = o
	return l
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		if l.isTrusted(ip) {
			c.Next()
			return
		}

		res, err := l.lim.Get(c.Request.Context(), l.key(c, ip))
		if err != nil {
			// fail open: an unavailable store must not block alert intake
			logger.Warn("rate limiter store error", zap.Error(err))
			c.Next()
			return
		}
		reset := time.Until(time.Unix(res.Reset, 0))
		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(max(int(reset.Seconds()), 0)))

		if res.Reached {
			c.Header("Retry-After", strconv.Itoa(max(int(reset.Seconds()), 1)))
			if l.observer != nil {
				l.observer.OnDeny(route)
			}
			response.Fail(c, http.StatusTooManyRequests, l.cfg.Message)
			return
		}
		if l.observer != nil {
			l.observer.OnAllow(route)
		}
		c.Next()
	}
}

func (l *RateLimiter) key(c *gin.Context, ip string) string {
	if l.cfg.KeyBy == "user" {
		if user := c.GetString(constants.UserField); user != "" {
			return "user:" + user
		}
	}
	return "ip:" + ip
}

func (l *RateLimiter) isTrusted(ip string) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range l.trusted {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}
