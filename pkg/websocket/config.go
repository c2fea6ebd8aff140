package websocket

import (
	"fmt"
	"time"

	"SOSBeacon/pkg/util"
)

// Config tunes the websocket hub.
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	// a subscriber silent for this long is dropped
	ConnectionTimeout time.Duration
	// per-subscriber outbox, in frames
	BufferSize      int
	ReadBufferSize  int
	WriteBufferSize int
	// max inbound message size
	MaxMessageSize    int
	EnableCompression bool
	// pending publish queue, in frames
	QueueSize int
	// slow consumer policy: disconnect instead of dropping frames
	CloseOnBackpressure bool
	// allowed Origin values for the upgrade; empty allows any
	AllowedOrigins []string
}

func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    1000,
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		BufferSize:        256,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    512,
		QueueSize:         1000,
	}
}

// LoadConfigFromEnv reads WEBSOCKET_* keys. Unset keys keep their defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := util.GetIntEnv("WEBSOCKET_MAX_CONNECTIONS"); v > 0 {
		cfg.MaxConnections = v
	}
	cfg.HeartbeatInterval = util.GetDurationEnv("WEBSOCKET_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.ConnectionTimeout = util.GetDurationEnv("WEBSOCKET_CONNECTION_TIMEOUT", cfg.ConnectionTimeout)
	for key, dst := range map[string]*int{
		"WEBSOCKET_BUFFER_SIZE":       &cfg.BufferSize,
		"WEBSOCKET_QUEUE_SIZE":        &cfg.QueueSize,
		"WEBSOCKET_READ_BUFFER_SIZE":  &cfg.ReadBufferSize,
		"WEBSOCKET_WRITE_BUFFER_SIZE": &cfg.WriteBufferSize,
		"WEBSOCKET_MAX_MESSAGE_SIZE":  &cfg.MaxMessageSize,
	} {
		if v := util.GetIntEnv(key); v > 0 {
			*dst = int(v)
		}
	}
	cfg.EnableCompression = util.GetBoolEnv("WEBSOCKET_ENABLE_COMPRESSION")
	cfg.CloseOnBackpressure = util.GetBoolEnv("WEBSOCKET_CLOSE_ON_BACKPRESSURE")
	cfg.AllowedOrigins = util.GetListEnv("WEBSOCKET_ALLOWED_ORIGINS")
	return cfg
}

// ValidateConfig rejects unusable settings.
func ValidateConfig(cfg *Config) error {
	switch {
	case cfg == nil:
		return fmt.Errorf("websocket config is nil")
	case cfg.MaxConnections <= 0:
		return fmt.Errorf("max connections must be > 0")
	case cfg.HeartbeatInterval <= 0 || cfg.ConnectionTimeout <= 0:
		return fmt.Errorf("heartbeat interval and connection timeout must be > 0")
	case cfg.HeartbeatInterval >= cfg.ConnectionTimeout:
		return fmt.Errorf("heartbeat interval must be shorter than connection timeout")
	case cfg.BufferSize <= 0 || cfg.QueueSize <= 0:
		return fmt.Errorf("buffer and queue sizes must be > 0")
	case cfg.ReadBufferSize <= 0 || cfg.WriteBufferSize <= 0 || cfg.MaxMessageSize <= 0:
		return fmt.Errorf("read/write buffer and message sizes must be > 0")
	}
	return nil
}
