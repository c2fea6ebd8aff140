package config

import (
	"log"
	"os"
	"time"

	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/notification"
	"SOSBeacon/pkg/storage"
	"SOSBeacon/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Log        logger.LogConfig
	Mail       notification.MailConfig
	SMS        notification.SMSConfig
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	APIPrefix  string `env:"API_PREFIX"`
	AuthPrefix string `env:"AUTH_PREFIX"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpire time.Duration `env:"JWT_EXPIRE"`

	AdminEmail             string `env:"ADMIN_EMAIL"`
	AdminPhone             string `env:"ADMIN_PHONE"`
	AdminBootstrapEmail    string `env:"ADMIN_BOOTSTRAP_EMAIL"`
	AdminBootstrapPassword string `env:"ADMIN_BOOTSTRAP_PASSWORD"`

	CacheType     string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	RateLimit        string   `env:"RATE_LIMIT"`
	RateLimitTrusted []string `env:"RATE_LIMIT_TRUSTED"`

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL"`
	CORSOrigins    []string      `env:"CORS_ORIGINS"`

	SearchEnabled bool   `env:"SEARCH_ENABLED"`
	SearchPath    string `env:"SEARCH_PATH"`

	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupKeep     int    `env:"BACKUP_KEEP"`

	// BackupRemote receives a copy of every snapshot when configured.
	BackupRemote storage.MinioConfig
}

var GlobalConfig *Config

// Load reads .env.<APP_ENV> then .env and fills GlobalConfig.
func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = FromEnv()
	return nil
}

// FromEnv builds a Config from the current process environment with defaults applied.
func FromEnv() *Config {
	return &Config{
		DBDriver:   util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:        util.GetEnvOr("DSN", "sosbeacon.db"),
		Addr:       util.GetEnvOr("ADDR", ":5000"),
		Mode:       util.GetEnvOr("MODE", "debug"),
		APIPrefix:  util.GetEnvOr("API_PREFIX", "/api/v1"),
		AuthPrefix: util.GetEnvOr("AUTH_PREFIX", "/auth"),
		JWTSecret:  util.GetEnv("JWT_SECRET"),
		JWTExpire:  util.GetDurationEnv("JWT_EXPIRE", 30*24*time.Hour),
		Log: logger.LogConfig{
			Level:      util.GetEnvOr("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Mail: notification.MailConfig{
			Host:     util.GetEnv("MAIL_HOST"),
			Username: util.GetEnv("MAIL_USERNAME"),
			Password: util.GetEnv("MAIL_PASSWORD"),
			Port:     int(util.GetIntEnvOr("MAIL_PORT", 587)),
			From:     util.GetEnvOr("MAIL_FROM", "noreply@sosbeacon.local"),
			Timeout:  util.GetDurationEnv("MAIL_TIMEOUT", 20*time.Second),
		},
		SMS: notification.SMSConfig{
			Endpoint:   util.GetEnv("SMS_ENDPOINT"),
			AccountSID: util.GetEnv("SMS_ACCOUNT_SID"),
			AuthToken:  util.GetEnv("SMS_AUTH_TOKEN"),
			From:       util.GetEnv("SMS_FROM"),
			Timeout:    util.GetDurationEnv("SMS_TIMEOUT", 10*time.Second),
		},
		AdminEmail:             util.GetEnv("ADMIN_EMAIL"),
		AdminPhone:             util.GetEnv("ADMIN_PHONE"),
		AdminBootstrapEmail:    util.GetEnv("ADMIN_BOOTSTRAP_EMAIL"),
		AdminBootstrapPassword: util.GetEnv("ADMIN_BOOTSTRAP_PASSWORD"),
		CacheType:              util.GetEnvOr("CACHE_TYPE", "memory"),
		RedisAddr:              util.GetEnvOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:          util.GetEnv("REDIS_PASSWORD"),
		RedisDB:                int(util.GetIntEnv("REDIS_DB")),
		RateLimit:              util.GetEnvOr("RATE_LIMIT", "100-15M"),
		RateLimitTrusted:       util.GetListEnv("RATE_LIMIT_TRUSTED"),
		IdempotencyTTL:         util.GetDurationEnv("IDEMPOTENCY_TTL", 30*time.Second),
		CORSOrigins:            util.GetListEnv("CORS_ORIGINS"),
		SearchEnabled:          util.GetBoolEnv("SEARCH_ENABLED"),
		SearchPath:             util.GetEnv("SEARCH_PATH"),
		BackupEnabled:          util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:             util.GetEnvOr("BACKUP_PATH", "backups"),
		BackupSchedule:         util.GetEnvOr("BACKUP_SCHEDULE", "0 3 * * *"),
		BackupKeep:             int(util.GetIntEnvOr("BACKUP_KEEP", 7)),
		BackupRemote: storage.MinioConfig{
			Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
			AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
			SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
			Bucket:    util.GetEnv("MINIO_BUCKET"),
			UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
			Prefix:    util.GetEnvOr("MINIO_PREFIX", "backups"),
		},
	}
}
