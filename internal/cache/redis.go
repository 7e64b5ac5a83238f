package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"uikits/internal/npmstats"
)

const (
	// DefaultRedisKeyPrefix namespaces stats keys: "<prefix><package>".
	DefaultRedisKeyPrefix = "uikits:npm:"

	// DefaultRedisTTL matches the provider's default freshness window.
	DefaultRedisTTL = 24 * time.Hour

	scanBatch = 200
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is e.g. "redis://localhost:6379" or "redis://:password@host:6379/0"
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache stores entries as JSON strings with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := newRedisCache(client, cfg)
	slog.Info("redis stats cache connected", "prefix", c.prefix, "ttl", c.ttl)
	return c, nil
}

func newRedisCache(client *redis.Client, cfg RedisConfig) *RedisCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(pkg string) string {
	return c.prefix + pkg
}

func (c *RedisCache) Get(ctx context.Context, pkg string) (*npmstats.CacheEntry, error) {
	data, err := c.client.Get(ctx, c.key(pkg)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats from redis: %w", err)
	}
	return unmarshalEntry(data)
}

func (c *RedisCache) Set(ctx context.Context, entry *npmstats.CacheEntry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(entry.PackageName), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set stats in redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, pkgs ...string) (int, error) {
	if len(pkgs) == 0 {
		return 0, nil
	}
	keys := make([]string, len(pkgs))
	for i, pkg := range pkgs {
		keys[i] = c.key(pkg)
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete stats from redis: %w", err)
	}
	return int(n), nil
}

// DeletePrefix scans for matching keys and deletes them in batches.
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	match := c.prefix + escapeGlob(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan redis: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete stats from redis: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// escapeGlob quotes the characters Redis SCAN MATCH treats specially.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
