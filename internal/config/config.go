// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds explorer server and CLI configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Persistence ("memory", "local", "postgres", "sqlite", "s3")
	StoreBackend     string
	LocalStoragePath string
	DatabaseURL      string
	SQLitePath       string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Save retries
	SaveAttempts    int
	SaveInitialWait time.Duration
	SaveTimeout     time.Duration

	// Explorer behavior
	DefaultWorkspace string
	FoldCase         bool
	ReservedNames    []string
	// RevealRepeat re-applies the file-open reveal after this delay
	// (0 disables the second pass).
	RevealRepeat time.Duration

	// Auth (optional: API is open when empty)
	JWTSecret string
	TokenTTL  time.Duration

	// RateLimitRPM is the per-client request budget per minute (0 = off).
	RateLimitRPM int
}

// Load reads an optional .env file, then configuration from environment
// variables with defaults.
func Load() (*Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		StoreBackend:     envOr("STORE_BACKEND", "local"),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "./data/workspaces"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		SQLitePath:       envOr("SQLITE_PATH", "./data/explorer.db"),
		S3Endpoint:       envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         envOr("S3_BUCKET", "explorer"),
		S3Prefix:         envOr("S3_PREFIX", "workspaces"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		SaveAttempts:     envInt("SAVE_ATTEMPTS", 3),
		SaveInitialWait:  envDuration("SAVE_INITIAL_WAIT", 100*time.Millisecond),
		SaveTimeout:      envDuration("SAVE_TIMEOUT", 10*time.Second),
		DefaultWorkspace: envOr("DEFAULT_WORKSPACE", "default"),
		FoldCase:         envBool("PATH_FOLD_CASE", false),
		ReservedNames:    envList("PATH_RESERVED_NAMES"),
		RevealRepeat:     envDuration("REVEAL_REPEAT", 0),
		JWTSecret:        envOr("JWT_SECRET", ""),
		TokenTTL:         envDuration("TOKEN_TTL", 24*time.Hour),
		RateLimitRPM:     envInt("RATE_LIMIT_RPM", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend-specific requirements.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "local", "sqlite", "s3":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SaveAttempts < 1 {
		return fmt.Errorf("SAVE_ATTEMPTS must be at least 1")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}
	if c.DefaultWorkspace == "" {
		return fmt.Errorf("DEFAULT_WORKSPACE must not be empty")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
