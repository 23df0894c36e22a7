// Package config loads server settings from the environment and policy
// overrides from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds server configuration.
type Config struct {
	Port                string
	LogLevel            string
	Store               string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	PolicyFile          string
	PolicyRegistryURL   string
	SigningURL          string
	NotifyURL           string
	OTLPEndpoint        string
	HealthEventRPS      float64
	ExpirySweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		LogLevel:          getenv("LOG_LEVEL", "INFO"),
		Store:             strings.ToLower(getenv("STORE", StoreMemory)),
		DatabaseURL:       getenv("DATABASE_URL", "postgres://restructure@localhost:5432/restructure?sslmode=disable"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		PolicyFile:        os.Getenv("POLICY_FILE"),
		PolicyRegistryURL: os.Getenv("POLICY_REGISTRY_URL"),
		SigningURL:        os.Getenv("SIGNING_URL"),
		NotifyURL:         os.Getenv("NOTIFY_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	rps, err := strconv.ParseFloat(getenv("HEALTH_EVENT_RPS", "1"), 64)
	if err != nil || rps <= 0 {
		return nil, fmt.Errorf("HEALTH_EVENT_RPS must be a positive number, got %q", os.Getenv("HEALTH_EVENT_RPS"))
	}
	cfg.HealthEventRPS = rps

	sweep, err := time.ParseDuration(getenv("EXPIRY_SWEEP_INTERVAL", "1m"))
	if err != nil || sweep <= 0 {
		return nil, fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be a positive duration, got %q", os.Getenv("EXPIRY_SWEEP_INTERVAL"))
	}
	cfg.ExpirySweepInterval = sweep

	switch cfg.Store {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return nil, fmt.Errorf("STORE must be one of memory, postgres, redis, got %q", cfg.Store)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
