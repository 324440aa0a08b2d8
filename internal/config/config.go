// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything injected from the environment: database location,
// broker URL, dispatch pool sizing and the retry/backoff curve.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RabbitURL   string // empty means run the in-memory queue in-process

	WorkerCount int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// TransportFailureRate is the simulated transient failure probability of
	// the mock transport, in [0,1).
	TransportFailureRate float64

	SeedOnStart bool
}

// Load reads configuration from the environment, falling back to defaults
// that work against the docker-compose setup.
func Load() Config {
	cfg := Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RabbitURL:            os.Getenv("RABBITMQ_URL"),
		WorkerCount:          getInt("WORKER_COUNT", 8),
		MaxAttempts:          getInt("MAX_ATTEMPTS", 3),
		BackoffBase:          getDuration("BACKOFF_BASE_MS", 500*time.Millisecond),
		BackoffCap:           getDuration("BACKOFF_CAP_MS", 30*time.Second),
		TransportFailureRate: getFloat("TRANSPORT_FAILURE_RATE", 0.1),
		SeedOnStart:          getEnv("SEED_ON_START", "0") == "1",
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_NAME", "campaigns"),
		)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
