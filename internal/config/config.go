// Package config reads OPENSHELF_* environment variables into typed values.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config is the runtime configuration shared by the api and worker binaries.
type Config struct {
	Addr        string
	PostgresDSN string
	RedisAddr   string

	AuthSecret string
	TokenTTL   time.Duration

	VaultEndpoint  string
	VaultAccessKey string
	VaultSecretKey string
	VaultUseSSL    bool
	VaultRegion    string
	FilesBucket    string
	CoversBucket   string

	MaxUploadBytes int64
	RateBurst      int
	RatePerSecond  int

	SweepInterval time.Duration
}

const (
	defaultAddr        = ":8080"
	defaultRedisAddr   = "localhost:6379"
	defaultTokenTTL    = 15 * time.Minute
	defaultFilesBucket = "book-files"
	defaultCoversBkt   = "book-covers"
	defaultMaxUpload   = 64 << 20 // 64 MiB
	defaultRateBurst   = 20
	defaultRatePerSec  = 10
	defaultSweepEvery  = 15 * time.Minute
)

// Load reads configuration from the environment, falling back to defaults.
// PostgresDSN and AuthSecret have no defaults; callers that need them fail fast.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           env("OPENSHELF_ADDR", defaultAddr),
		PostgresDSN:    env("OPENSHELF_PG_DSN", ""),
		RedisAddr:      env("OPENSHELF_REDIS_ADDR", defaultRedisAddr),
		AuthSecret:     env("OPENSHELF_AUTH_SECRET", ""),
		TokenTTL:       envDuration("OPENSHELF_TOKEN_TTL", defaultTokenTTL),
		VaultEndpoint:  env("OPENSHELF_VAULT_ENDPOINT", "localhost:9000"),
		VaultAccessKey: env("OPENSHELF_VAULT_ACCESS_KEY", ""),
		VaultSecretKey: env("OPENSHELF_VAULT_SECRET_KEY", ""),
		VaultUseSSL:    envBool("OPENSHELF_VAULT_SSL", false),
		VaultRegion:    env("OPENSHELF_VAULT_REGION", ""),
		FilesBucket:    env("OPENSHELF_FILES_BUCKET", defaultFilesBucket),
		CoversBucket:   env("OPENSHELF_COVERS_BUCKET", defaultCoversBkt),
		MaxUploadBytes: envInt64("OPENSHELF_MAX_UPLOAD_BYTES", defaultMaxUpload),
		RateBurst:      envInt("OPENSHELF_RATE_BURST", defaultRateBurst),
		RatePerSecond:  envInt("OPENSHELF_RATE_PER_SEC", defaultRatePerSec),
		SweepInterval:  envDuration("OPENSHELF_SWEEP_INTERVAL", defaultSweepEvery),
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return cfg, nil
}

// RequireDB returns an error when the Postgres DSN is missing.
func (c *Config) RequireDB() error {
	if c.PostgresDSN == "" {
		return errors.New("OPENSHELF_PG_DSN is required")
	}
	return nil
}

// RequireAuth returns an error when the token signing secret is missing.
func (c *Config) RequireAuth() error {
	if c.AuthSecret == "" {
		return errors.New("OPENSHELF_AUTH_SECRET is required")
	}
	return nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
