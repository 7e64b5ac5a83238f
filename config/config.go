// Package config provides configuration management for the application.
//
// Values are resolved in this order: built-in defaults, config.yaml (with
// ${VAR} and ${VAR:-default} expansion), then environment variables. A .env
// file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Body size limit bounds accepted by ValidateBodySizeLimit.
const (
	MinBodySizeLimit int64 = 1 << 10
	MaxBodySizeLimit int64 = 100 << 20
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	NPM     NPMConfig     `mapstructure:"npm"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// MasterKey protects /api/revalidate. Empty disables the endpoint.
	MasterKey     string `mapstructure:"master_key"`
	BodySizeLimit string `mapstructure:"body_size_limit"`
}

// StorageConfig selects the database shared by the catalog and the stats cache.
type StorageConfig struct {
	Type       string           `mapstructure:"type"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgreSQLConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

type MongoDBConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// CacheConfig selects the first-tier statistics cache.
type CacheConfig struct {
	Type  string        `mapstructure:"type"`
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NPMConfig tunes the npm downloads client and the statistics provider.
type NPMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Freshness    time.Duration `mapstructure:"freshness"`
	LookbackDays int           `mapstructure:"lookback_days"`
	// WarmInterval runs the background warmer; zero disables it.
	WarmInterval time.Duration `mapstructure:"warm_interval"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// CatalogConfig tunes catalog reads.
type CatalogConfig struct {
	MemoTTL time.Duration `mapstructure:"memo_ttl"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig controls process logs.
type LoggingConfig struct {
	// Format is "json", "pretty" or "auto" (pretty on a terminal).
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
	// File, when set, receives logs through a rotating writer.
	File string `mapstructure:"file"`
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	return buildDefaultConfig()
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "1M",
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/uikits.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "uikits"},
		},
		Cache: CacheConfig{
			Type:  "local",
			TTL:   time.Hour,
			Redis: RedisConfig{KeyPrefix: "uikits:npm:"},
		},
		NPM: NPMConfig{
			BaseURL:      "https://api.npmjs.org",
			Timeout:      10 * time.Second,
			Freshness:    24 * time.Hour,
			LookbackDays: 30,
			UserAgent:    "uikits/1.0",
		},
		Catalog: CatalogConfig{MemoTTL: 60 * time.Second},
		Metrics: MetricsConfig{Endpoint: "/metrics"},
		Logging: LoggingConfig{Format: "auto", Level: "info"},
	}
}

// Load reads configuration from .env, config.yaml and the environment.
// CONFIG_PATH selects a config file; otherwise config.yaml and
// config/config.yaml are tried. A missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := newViper()
	if err := loadFile(v); err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.master_key":            "UIKITS_MASTER_KEY",
	"server.body_size_limit":       "BODY_SIZE_LIMIT",
	"storage.type":                 "STORAGE_TYPE",
	"storage.sqlite.path":          "SQLITE_PATH",
	"storage.postgresql.url":       "POSTGRES_URL",
	"storage.postgresql.max_conns": "POSTGRES_MAX_CONNS",
	"storage.mongodb.url":          "MONGODB_URL",
	"storage.mongodb.database":     "MONGODB_DATABASE",
	"cache.type":                   "CACHE_TYPE",
	"cache.ttl":                    "CACHE_TTL",
	"cache.redis.url":              "REDIS_URL",
	"cache.redis.key_prefix":       "REDIS_KEY_PREFIX",
	"npm.base_url":                 "NPM_API_URL",
	"npm.timeout":                  "NPM_STATS_TIMEOUT",
	"npm.freshness":                "NPM_STATS_FRESHNESS",
	"npm.lookback_days":            "NPM_STATS_LOOKBACK_DAYS",
	"npm.warm_interval":            "NPM_STATS_WARM_EVERY",
	"catalog.memo_ttl":             "CATALOG_MEMO_TTL",
	"metrics.enabled":              "METRICS_ENABLED",
	"metrics.endpoint":             "METRICS_ENDPOINT",
	"logging.format":               "LOG_FORMAT",
	"logging.level":                "LOG_LEVEL",
	"logging.file":                 "LOG_FILE",
}

// newViper returns a viper instance seeded with defaults and env bindings.
// Empty environment variables are treated as unset.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, buildDefaultConfig())
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.master_key", d.Server.MasterKey)
	v.SetDefault("server.body_size_limit", d.Server.BodySizeLimit)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.sqlite.path", d.Storage.SQLite.Path)
	v.SetDefault("storage.postgresql.url", d.Storage.PostgreSQL.URL)
	v.SetDefault("storage.postgresql.max_conns", d.Storage.PostgreSQL.MaxConns)
	v.SetDefault("storage.mongodb.url", d.Storage.MongoDB.URL)
	v.SetDefault("storage.mongodb.database", d.Storage.MongoDB.Database)
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis.url", d.Cache.Redis.URL)
	v.SetDefault("cache.redis.key_prefix", d.Cache.Redis.KeyPrefix)
	v.SetDefault("npm.base_url", d.NPM.BaseURL)
	v.SetDefault("npm.timeout", d.NPM.Timeout)
	v.SetDefault("npm.freshness", d.NPM.Freshness)
	v.SetDefault("npm.lookback_days", d.NPM.LookbackDays)
	v.SetDefault("npm.warm_interval", d.NPM.WarmInterval)
	v.SetDefault("npm.user_agent", d.NPM.UserAgent)
	v.SetDefault("catalog.memo_ttl", d.Catalog.MemoTTL)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.endpoint", d.Metrics.Endpoint)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

func loadFile(v *viper.Viper) error {
	candidates := []string{"config.yaml", "config/config.yaml"}
	explicit := os.Getenv("CONFIG_PATH")
	if explicit != "" {
		candidates = []string{explicit}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && explicit == "" {
				continue
			}
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := v.ReadConfig(strings.NewReader(expandString(string(data)))); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty and has no default is left as written.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		if parts[2] != "" {
			return parts[3]
		}
		return m
	})
}

// durationDecodeHook accepts a Go duration ("90s") or whole seconds (90 or "90").
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return time.Duration(0), nil
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("unsupported duration value %T", data)
		}
	}
}

// Validate rejects unknown backends and non-positive durations.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type))
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgreSQL.URL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required for postgresql storage"))
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URL == "" {
		errs = append(errs, errors.New("MONGODB_URL is required for mongodb storage"))
	}

	switch c.Cache.Type {
	case "local", "none":
	case "redis":
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache type %q (valid: local, redis, none)", c.Cache.Type))
	}

	positive := map[string]time.Duration{
		"npm.timeout":      c.NPM.Timeout,
		"npm.freshness":    c.NPM.Freshness,
		"cache.ttl":        c.Cache.TTL,
		"catalog.memo_ttl": c.Catalog.MemoTTL,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.NPM.WarmInterval < 0 {
		errs = append(errs, fmt.Errorf("npm.warm_interval must not be negative, got %s", c.NPM.WarmInterval))
	}
	if c.NPM.LookbackDays < 16 {
		errs = append(errs, fmt.Errorf("npm.lookback_days must be at least 16, got %d", c.NPM.LookbackDays))
	}

	switch c.Logging.Format {
	case "json", "pretty", "auto":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (valid: json, pretty, auto)", c.Logging.Format))
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateBodySizeLimit checks a size such as "512K", "10M" or "1048576".
// Empty means the default.
func ValidateBodySizeLimit(s string) error {
	_, err := ParseBodySizeLimit(s)
	return err
}

// ParseBodySizeLimit converts a size string to bytes. Empty returns 0.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "B")
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid body size limit %q", s)
	}
	size := n * multiplier
	if size < MinBodySizeLimit || size > MaxBodySizeLimit {
		return 0, fmt.Errorf("body size limit must be between 1K and 100M, got %d bytes", size)
	}
	return size, nil
}
