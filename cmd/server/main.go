package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "SOSBeacon/internal/handler"
	"SOSBeacon/internal/listeners"
	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/backup"
	"SOSBeacon/pkg/cache"
	"SOSBeacon/pkg/config"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/metrics"
	"SOSBeacon/pkg/middleware"
	"SOSBeacon/pkg/notification"
	"SOSBeacon/pkg/scheduler"
	"SOSBeacon/pkg/search"
	"SOSBeacon/pkg/sse"
	"SOSBeacon/pkg/storage"
	"SOSBeacon/pkg/util"
	"SOSBeacon/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	gin.SetMode(cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	gormLevel := gormlogger.Warn
	if cfg.Mode == gin.DebugMode {
		gormLevel = gormlogger.Info
	}
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, gormLevel)
	if err != nil {
		return err
	}
	m := metrics.NewMetrics()
	if err := db.Use(metrics.NewGormPlugin(m)); err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return err
	}
	if cfg.AdminBootstrapEmail != "" {
		admin, created, err := models.EnsureAdmin(db, cfg.AdminBootstrapEmail, cfg.AdminBootstrapPassword)
		if err != nil {
			return err
		}
		logger.Info("bootstrap admin ready", zap.String("email", admin.Email), zap.Bool("created", created))
	}

	jwt, err := middleware.NewJWT(cfg.JWTSecret, cfg.JWTExpire)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}

	// Idempotency guard and rate limit share the configured backend.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cfg.CacheType
	cacheCfg.Redis.Addr = cfg.RedisAddr
	cacheCfg.Redis.Password = cfg.RedisPassword
	cacheCfg.Redis.DB = cfg.RedisDB
	idemStore, err := cache.NewCache(cacheCfg)
	if err != nil {
		return err
	}
	defer idemStore.Close()

	var limitStore limiter.Store
	if rdb, ok := cache.RedisClient(idemStore); ok {
		limitStore, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "sosbeacon:ratelimit"})
		if err != nil {
			return err
		}
	}
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:    cfg.RateLimit,
		Trusted: cfg.RateLimitTrusted,
	}, limitStore).WithObserver(m)

	wsConfig := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsConfig); err != nil {
		return err
	}
	hub := websocket.NewHub(wsConfig)
	defer hub.Close()
	events := sse.NewHub(wsConfig.HeartbeatInterval)

	var index search.Engine
	if cfg.SearchEnabled {
		index, err = search.New(search.Config{IndexPath: cfg.SearchPath, QueryTimeout: 5 * time.Second}, nil)
		if err != nil {
			return err
		}
		defer index.Close()
		alerts, err := models.ListAlerts(db)
		if err != nil {
			return err
		}
		if err := listeners.Reindex(ctx, index, alerts); err != nil {
			return err
		}
		logger.Info("search index ready", zap.Int("alerts", len(alerts)))
	}

	notifier := &notification.AlertNotifier{AdminEmail: cfg.AdminEmail, AdminPhone: cfg.AdminPhone}
	if cfg.Mail.Enabled() {
		notifier.Mail = notification.NewMailer(cfg.Mail)
	}
	if cfg.SMS.Enabled() {
		notifier.SMS = notification.NewSMS(cfg.SMS, nil)
	}

	signals := util.NewSignals()
	alertListeners := listeners.InitAlertListeners(signals, &listeners.AlertListeners{
		Notifier: notifier,
		Search:   index,
		Metrics:  m,
	})
	// runs after srv.Shutdown, so no handler can emit while it drains
	defer alertListeners.Close()

	engine := gin.New()
	engine.Use(logger.GinLogger(), logger.GinRecovery(), middleware.CORS(cfg.CORSOrigins), metrics.MonitorMiddleware(m))
	handlers.NewHandlers(db, handlers.Deps{
		APIPrefix:        cfg.APIPrefix,
		AuthPrefix:       cfg.AuthPrefix,
		JWT:              jwt,
		Relay:            websocket.Fanout{hub, events},
		Signals:          signals,
		Metrics:          m,
		Search:           index,
		Hub:              hub,
		Events:           events,
		RateLimiter:      rateLimiter,
		IdempotencyStore: idemStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
	}).Register(engine)

	cron := scheduler.NewCron(ctx, time.UTC)
	if cfg.BackupEnabled {
		b := backup.New(db, backup.Config{Driver: cfg.DBDriver, Dir: cfg.BackupPath, Schedule: cfg.BackupSchedule, Keep: cfg.BackupKeep})
		if cfg.BackupRemote.Enabled() {
			remote, err := storage.NewMinioStore(cfg.BackupRemote)
			if err != nil {
				return err
			}
			b.WithRemote(remote)
		}
		if err := b.Schedule(cron); err != nil {
			return err
		}
	}
	cron.Start()
	defer cron.Stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("alert service listening", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.APIPrefix))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
