// Package cache provides the first-tier download statistics cache that sits
// in front of the persisted npm_stats table. LocalCache serves a single
// process; RedisCache lets several instances share one tier.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"uikits/internal/npmstats"
)

// Type constants for cache backends.
const (
	TypeLocal = "local"
	TypeRedis = "redis"
	TypeNone  = "none"
)

// Cache is the first-tier contract used by npmstats.Provider.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns nil, nil when pkg is not cached.
	Get(ctx context.Context, pkg string) (*npmstats.CacheEntry, error)
	Set(ctx context.Context, entry *npmstats.CacheEntry) error
	Delete(ctx context.Context, pkgs ...string) (int, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Config selects a backend.
type Config struct {
	// Type is "local", "redis" or "none".
	Type  string
	TTL   time.Duration
	Redis RedisConfig
}

// New builds the configured cache. It returns nil, nil for TypeNone.
func New(cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeNone:
		return nil, nil
	case TypeLocal, "":
		return NewLocalCache(cfg.TTL), nil
	case TypeRedis:
		rc := cfg.Redis
		if rc.TTL == 0 {
			rc.TTL = cfg.TTL
		}
		return NewRedisCache(rc)
	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: local, redis, none)", cfg.Type)
	}
}

// cachedEntry is the serialized form shared by all backends.
type cachedEntry struct {
	PackageName string                  `json:"package_name"`
	Series      npmstats.DownloadSeries `json:"stats_data"`
	LastUpdated time.Time               `json:"last_updated"`
}

func marshalEntry(e *npmstats.CacheEntry) ([]byte, error) {
	if e == nil || e.PackageName == "" {
		return nil, fmt.Errorf("cache entry requires a package name")
	}
	data, err := json.Marshal(cachedEntry{PackageName: e.PackageName, Series: e.Series, LastUpdated: e.LastUpdated})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

func unmarshalEntry(data []byte) (*npmstats.CacheEntry, error) {
	var c cachedEntry
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry: %w", err)
	}
	return &npmstats.CacheEntry{PackageName: c.PackageName, Series: c.Series, LastUpdated: c.LastUpdated}, nil
}
