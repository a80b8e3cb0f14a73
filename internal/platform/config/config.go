package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Empty PostgresDSN / RedisURL / AMQPURL mean the corresponding
// backend is not wired (memory store, no cache, log-only notifications).
type Config struct {
	Addr          string
	PostgresDSN   string
	RedisURL      string
	AMQPURL       string
	JWTSigningKey string

	HistoryPageSize int
	NotifyBuffer    int
	ActiveCacheTTL  time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. The JWT key default must be overridden in production.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("GATEHOUSE_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("GATEHOUSE_POSTGRES_DSN"),
		RedisURL:        os.Getenv("GATEHOUSE_REDIS_URL"),
		AMQPURL:         os.Getenv("GATEHOUSE_AMQP_URL"),
		JWTSigningKey:   envOr("GATEHOUSE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		HistoryPageSize: envIntOr("GATEHOUSE_HISTORY_PAGE_SIZE", 100),
		NotifyBuffer:    envIntOr("GATEHOUSE_NOTIFY_BUFFER", 256),
		ActiveCacheTTL:  envDurationOr("GATEHOUSE_ACTIVE_CACHE_TTL", 15*time.Second),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
