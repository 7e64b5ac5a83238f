package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no config.yaml or .env
// from the repository leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"PORT", "CONFIG_PATH", "STORAGE_TYPE", "CACHE_TYPE", "UIKITS_MASTER_KEY", "NPM_STATS_FRESHNESS"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "data/uikits.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "local", cfg.Cache.Type)
	assert.Equal(t, "https://api.npmjs.org", cfg.NPM.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.NPM.Freshness)
	assert.Equal(t, 10*time.Second, cfg.NPM.Timeout)
	assert.Zero(t, cfg.NPM.WarmInterval)
	assert.Empty(t, cfg.Server.MasterKey)
}

func TestLoad_YAMLWithPlaceholders(t *testing.T) {
	dir := isolate(t)
	content := `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
  master_key: "${TEST_KEY_DEFAULTS:-default-key}"
npm:
  freshness: 6h
  lookback_days: 21
cache:
  type: none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	t.Run("defaults apply", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, "default-key", cfg.Server.MasterKey)
		assert.Equal(t, 6*time.Hour, cfg.NPM.Freshness)
		assert.Equal(t, 21, cfg.NPM.LookbackDays)
		assert.Equal(t, "none", cfg.Cache.Type)
	})

	t.Run("env fills placeholders", func(t *testing.T) {
		t.Setenv("TEST_PORT_DEFAULTS", "1111")
		t.Setenv("TEST_KEY_DEFAULTS", "real-key")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "1111", cfg.Server.Port)
		assert.Equal(t, "real-key", cfg.Server.MasterKey)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("PORT", "7000")
		t.Setenv("NPM_STATS_FRESHNESS", "1h")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "7000", cfg.Server.Port)
		assert.Equal(t, time.Hour, cfg.NPM.Freshness)
	})
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("UIKITS_MASTER_KEY=from-dotenv\n"), 0o644))
	// godotenv does not override variables that are already set, even empty.
	require.NoError(t, os.Unsetenv("UIKITS_MASTER_KEY"))
	t.Cleanup(func() { _ = os.Unsetenv("UIKITS_MASTER_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.MasterKey)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_PATH", "missing.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage.Type = "dynamo" }, "unknown storage type"},
		{"postgres without url", func(c *Config) { c.Storage.Type = "postgresql" }, "POSTGRES_URL"},
		{"mongo without url", func(c *Config) { c.Storage.Type = "mongodb" }, "MONGODB_URL"},
		{"redis without url", func(c *Config) { c.Cache.Type = "redis" }, "REDIS_URL"},
		{"unknown cache", func(c *Config) { c.Cache.Type = "memcached" }, "unknown cache type"},
		{"zero freshness", func(c *Config) { c.NPM.Freshness = 0 }, "npm.freshness must be positive"},
		{"negative timeout", func(c *Config) { c.NPM.Timeout = -time.Second }, "npm.timeout must be positive"},
		{"negative warm interval", func(c *Config) { c.NPM.WarmInterval = -time.Hour }, "warm_interval"},
		{"short lookback", func(c *Config) { c.NPM.LookbackDays = 7 }, "lookback_days"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "unknown log format"},
		{"bad body limit", func(c *Config) { c.Server.BodySizeLimit = "1G" }, "body size limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateBodySizeLimit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		// Valid formats
		{"empty string is valid", "", false},
		{"plain number", "1048576", false},
		{"kilobytes lowercase", "100k", false},
		{"kilobytes uppercase", "100K", false},
		{"kilobytes with B suffix", "100KB", false},
		{"megabytes lowercase", "10m", false},
		{"megabytes uppercase", "10M", false},
		{"megabytes with B suffix", "10MB", false},
		{"whitespace trimmed", "  10M  ", false},

		// Boundary values
		{"minimum valid (1KB)", "1K", false},
		{"maximum valid (100MB)", "100M", false},

		// Invalid formats
		{"invalid format with letters", "abc", true},
		{"invalid unit", "10X", true},
		{"negative number", "-10M", true},
		{"decimal number", "10.5M", true},
		{"empty unit with B", "10B", true},

		// Boundary violations
		{"below minimum (100 bytes)", "100", true},
		{"above maximum (200MB)", "200M", true},
		{"above maximum (1GB)", "1G", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBodySizeLimit(tt.input)
			if tt.expectError {
				assert.Error(t, err, tt.input)
			} else {
				assert.NoError(t, err, tt.input)
			}
		})
	}
}

func TestParseBodySizeLimit(t *testing.T) {
	n, err := ParseBodySizeLimit("512K")
	require.NoError(t, err)
	assert.Equal(t, int64(512<<10), n)
}
