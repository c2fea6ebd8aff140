package handlers

import (
	"time"

	"SOSBeacon/pkg/cache"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/metrics"
	"SOSBeacon/pkg/middleware"
	"SOSBeacon/pkg/search"
	"SOSBeacon/pkg/sse"
	"SOSBeacon/pkg/util"
	"SOSBeacon/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the collaborators the handlers publish to or read from.
// Only JWT is required; nil fields disable the feature they back.
type Deps struct {
	APIPrefix  string
	AuthPrefix string

	JWT         *middleware.JWT
	Relay       websocket.Relay
	Signals     *util.Signals
	Metrics     *metrics.Metrics
	Search      search.Engine
	Hub         *websocket.Hub
	Events      *sse.Hub
	RateLimiter *middleware.RateLimiter

	IdempotencyStore cache.Cache
	IdempotencyTTL   time.Duration
}

type Handlers struct {
	db      *gorm.DB
	jwt     *middleware.JWT
	relay   websocket.Relay
	signals *util.Signals
	metrics *metrics.Metrics
	search  search.Engine
	deps    Deps
}

func NewHandlers(db *gorm.DB, deps Deps) *Handlers {
	if deps.APIPrefix == "" {
		deps.APIPrefix = "/api/v1"
	}
	if deps.AuthPrefix == "" {
		deps.AuthPrefix = "/auth"
	}
	relay := deps.Relay
	if relay == nil {
		relay = websocket.NopRelay{}
	}
	signals := deps.Signals
	if signals == nil {
		signals = util.NewSignals()
	}
	return &Handlers{
		db:      db,
		jwt:     deps.JWT,
		relay:   relay,
		signals: signals,
		metrics: deps.Metrics,
		search:  deps.Search,
		deps:    deps,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	if h.deps.Hub != nil {
		websocket.RegisterRoutes(engine, websocket.NewHandler(h.deps.Hub, constants.AdminRoom),
			middleware.RequireAuth(h.jwt), middleware.RequireAdmin())
	}

	r := engine.Group(h.deps.APIPrefix)
	r.Use(middleware.OperationLogMiddleware(h.db))

	h.registerSystemRoutes(r)
	h.registerAuthRoutes(r)
	h.registerAlertRoutes(r)
}

// Auth Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group(h.deps.AuthPrefix)
	{
		auth.POST("/register", h.handleRegister)

		auth.POST("/login", h.handleLogin)

		auth.GET("/me", middleware.RequireAuth(h.jwt), h.handleMe)
	}
}

// Alert Module
func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("alerts")

	submit := []gin.HandlerFunc{}
	if h.deps.RateLimiter != nil {
		submit = append(submit, h.deps.RateLimiter.Middleware())
	}
	submit = append(submit,
		middleware.OptionalAuth(h.jwt),
		middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
			Store: h.deps.IdempotencyStore,
			TTL:   h.deps.IdempotencyTTL,
		}),
		h.handleSubmitAlert,
	)
	alerts.POST("", submit...)

	admin := alerts.Group("", middleware.RequireAuth(h.jwt), middleware.RequireAdmin())
	{
		admin.GET("", h.handleListAlerts)

		admin.GET("/search", h.handleSearchAlerts)

		admin.GET("/stream", h.handleAlertStream)

		admin.GET("/:id", h.handleGetAlert)

		admin.PUT("/:id", h.handleResolveAlert)

		admin.PATCH("/:id/resolve", h.handleResolveAlert)
	}
}

// System Module
func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.GET("/stats", middleware.RequireAuth(h.jwt), middleware.RequireAdmin(), h.handleStats)

		system.GET("/oplogs", middleware.RequireAuth(h.jwt), middleware.RequireAdmin(), h.handleOperationLogs)
	}
}
