package util

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// LoadEnv reads .env.<env> and then .env from the working directory.
// Variables already present in the process environment win.
func LoadEnv(env string) error {
	var firstErr error
	loaded := false
	for _, name := range []string{".env." + env, ".env"} {
		err := loadEnvFile(name)
		if err == nil {
			loaded = true
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if !loaded && firstErr == nil {
		return os.ErrNotExist
	}
	return firstErr
}

func loadEnvFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
	return scanner.Err()
}

// GetEnv returns the trimmed value of key.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvOr returns the value of key or fallback when unset.
func GetEnvOr(key, fallback string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return fallback
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetIntEnvOr(key string, fallback int64) int64 {
	raw := GetEnv(key)
	if raw == "" {
		return fallback
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return fallback
	}
	return v
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetDurationEnv accepts Go durations ("30s") or plain integers, read as seconds.
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return fallback
	}
	if secs, err := cast.ToInt64E(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetListEnv splits a comma separated value, dropping empty items.
func GetListEnv(key string) []string {
	raw := GetEnv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
