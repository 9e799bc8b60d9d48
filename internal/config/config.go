// Package config loads the redaction service settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/tsawler/redactor/raster"
)

// Config holds the service settings.
type Config struct {
	Port           string
	DatabasePath   string
	UploadDir      string
	RulesPath      string
	MaxUploadBytes int64
	OCRPolicy      raster.OCRPolicy
	RateLimitRPS   float64
	MaxConnections int
	Placeholder    string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Port:           "8000",
		DatabasePath:   "app.db",
		UploadDir:      "uploads",
		MaxUploadBytes: 50 << 20,
		OCRPolicy:      raster.OCRIfAvailable,
		RateLimitRPS:   5,
		MaxConnections: 64,
	}
}

// Load reads envFile, when it exists, into the process environment without
// overriding variables already set, then builds a Config from the
// environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			slog.Debug("No .env file, using process environment", "path", envFile)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	get := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	get("PORT", &cfg.Port)
	get("DATABASE_PATH", &cfg.DatabasePath)
	get("UPLOAD_DIR", &cfg.UploadDir)
	get("RULES_PATH", &cfg.RulesPath)
	get("PLACEHOLDER", &cfg.Placeholder)

	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil || mb <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_UPLOAD_MB %q", v)
		}
		cfg.MaxUploadBytes = mb << 20
	}
	if v := getenv("OCR_POLICY"); v != "" {
		p, err := raster.ParseOCRPolicy(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OCR_POLICY: %w", err)
		}
		cfg.OCRPolicy = p
	}
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", v)
		}
		cfg.RateLimitRPS = rps
	}
	if v := getenv("MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid MAX_CONNECTIONS %q", v)
		}
		cfg.MaxConnections = n
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
