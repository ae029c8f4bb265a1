// Package config handles loading and validating configuration from
// environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the analytics engine.
type Config struct {
	// HTTP
	Port string

	// Storage
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Refresh scheduling
	RefreshInterval time.Duration

	// Social enrichment
	EnrichBackendURL  string
	EnrichScoreURL    string
	EnrichScoreKey    string
	EnrichInterval    time.Duration
	EnrichBatchSize   int
	EnrichMaxAttempts int
}

// Load reads configuration from environment variables with fallback to a
// .env file. Priority order: environment variables > .env file > defaults.
func Load() *Config {
	// Attempt to load .env file (ignore error if not found).
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    time.Duration(getEnvInt("CACHE_TTL_SECONDS", 30)) * time.Second,

		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_SECONDS", 5)) * time.Second,

		EnrichBackendURL:  getEnv("ENRICH_BACKEND_URL", ""),
		EnrichScoreURL:    getEnv("ENRICH_SCORE_URL", ""),
		EnrichScoreKey:    getEnv("ENRICH_SCORE_KEY", ""),
		EnrichInterval:    time.Duration(getEnvInt("ENRICH_INTERVAL_SECONDS", 5)) * time.Second,
		EnrichBatchSize:   getEnvInt("ENRICH_BATCH_SIZE", 30),
		EnrichMaxAttempts: getEnvInt("ENRICH_MAX_ATTEMPTS", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
