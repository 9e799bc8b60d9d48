package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/redactor/raster"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8000", cfg.Addr())
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":            "9090",
		"DATABASE_PATH":   "/var/lib/redact/history.db",
		"UPLOAD_DIR":      "/srv/out",
		"RULES_PATH":      "/etc/redact/rules.yaml",
		"MAX_UPLOAD_MB":   "8",
		"OCR_POLICY":      "required",
		"RATE_LIMIT_RPS":  "0.5",
		"MAX_CONNECTIONS": "10",
		"PLACEHOLDER":     "###",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Port:           "9090",
		DatabasePath:   "/var/lib/redact/history.db",
		UploadDir:      "/srv/out",
		RulesPath:      "/etc/redact/rules.yaml",
		MaxUploadBytes: 8 << 20,
		OCRPolicy:      raster.OCRRequired,
		RateLimitRPS:   0.5,
		MaxConnections: 10,
		Placeholder:    "###",
	}, cfg)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"MAX_UPLOAD_MB":   "lots",
		"OCR_POLICY":      "sometimes",
		"RATE_LIMIT_RPS":  "-1",
		"MAX_CONNECTIONS": "x",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := FromEnv(envMap(map[string]string{key: value}))
			require.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("UPLOAD_DIR=/tmp/redacted-test\n"), 0o600))
	t.Setenv("UPLOAD_DIR", "")
	os.Unsetenv("UPLOAD_DIR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/redacted-test", cfg.UploadDir)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
