package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"codeshare/internal/activity"
	"codeshare/internal/session"
)

// service config, read from the environment
type Config struct {
	Port             string
	LogLevel         string
	AllowedOrigins   []string
	RedisAddr        string
	ActivityChannel  string
	SessionIdleTTL   time.Duration
	EvictionInterval time.Duration
	ClientSendBuffer int
}

// loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins:  splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		ActivityChannel: getEnvOrDefault("ACTIVITY_CHANNEL", activity.DefaultChannel),
	}

	var err error
	if cfg.SessionIdleTTL, err = durationEnv("SESSION_IDLE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.EvictionInterval, err = durationEnv("EVICTION_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ClientSendBuffer, err = intEnv("CLIENT_SEND_BUFFER", session.DefaultSendBuffer); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: must be numeric", cfg.Port)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	if cfg.SessionIdleTTL < 0 {
		return fmt.Errorf("invalid SESSION_IDLE_TTL %s: must not be negative", cfg.SessionIdleTTL)
	}
	if cfg.SessionIdleTTL > 0 && cfg.EvictionInterval <= 0 {
		return fmt.Errorf("invalid EVICTION_INTERVAL %s: must be positive when eviction is enabled", cfg.EvictionInterval)
	}
	if cfg.ClientSendBuffer <= 0 {
		return fmt.Errorf("invalid CLIENT_SEND_BUFFER %d: must be positive", cfg.ClientSendBuffer)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must list at least one origin")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }

// AllowsAnyOrigin reports whether "*" is among the allowed origins.
func (c *Config) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
