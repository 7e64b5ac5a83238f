package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"uikits/internal/npmstats"
)

// DefaultLocalTTL bounds how long an entry stays in process memory. The
// provider applies its own freshness check on top of this.
const DefaultLocalTTL = time.Hour

// LocalCache keeps serialized entries in a map owned by this process.
type LocalCache struct {
	mu    sync.RWMutex
	items map[string]localItem
	ttl   time.Duration
	now   func() time.Time
}

type localItem struct {
	data     []byte
	storedAt time.Time
}

// NewLocalCache creates an empty cache. ttl <= 0 selects DefaultLocalTTL.
func NewLocalCache(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultLocalTTL
	}
	return &LocalCache{
		items: make(map[string]localItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the cached entry.
func (c *LocalCache) Get(_ context.Context, pkg string) (*npmstats.CacheEntry, error) {
	c.mu.RLock()
	item, ok := c.items[pkg]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c.now().Sub(item.storedAt) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.items[pkg]; ok && cur.storedAt.Equal(item.storedAt) {
			delete(c.items, pkg)
		}
		c.mu.Unlock()
		return nil, nil
	}
	return unmarshalEntry(item.data)
}

func (c *LocalCache) Set(_ context.Context, entry *npmstats.CacheEntry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[entry.PackageName] = localItem{data: data, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(_ context.Context, pkgs ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, pkg := range pkgs {
		if _, ok := c.items[pkg]; ok {
			delete(c.items, pkg)
			removed++
		}
	}
	return removed, nil
}

// DeletePrefix removes every package starting with prefix; "" clears the cache.
func (c *LocalCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for pkg := range c.items {
		if strings.HasPrefix(pkg, prefix) {
			delete(c.items, pkg)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of cached packages, including expired ones not yet read.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close is a no-op for the local cache.
func (c *LocalCache) Close() error {
	return nil
}
