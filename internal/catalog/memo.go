package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMemoTTL bounds how long a memoized catalog read is served.
const DefaultMemoTTL = 60 * time.Second

// memoLoadTimeout bounds a shared backend load. The load runs detached from
// the caller that started it so other waiters survive its cancellation.
const memoLoadTimeout = 30 * time.Second

type memoEntry struct {
	value   any
	expires time.Time
}

// CachedStore memoizes Reader results for a short TTL. Concurrent misses
// for the same key share one backend call. Writes pass through and clear
// the memo. Returned values are shared between callers and must not be
// modified.
type CachedStore struct {
	Store

	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]memoEntry
}

// NewCachedStore wraps store. A non-positive ttl uses DefaultMemoTTL.
func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &CachedStore{
		Store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoEntry),
	}
}

func memoized[T any](ctx context.Context, c *CachedStore, key string, load func(context.Context) (T, error)) (T, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.value.(T), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), memoLoadTimeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.entries[key] = memoEntry{value: v, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *CachedStore) ListFrameworks(ctx context.Context) ([]Framework, error) {
	return memoized(ctx, c, "frameworks", c.Store.ListFrameworks)
}

func (c *CachedStore) GetFrameworkBySlug(ctx context.Context, slug string) (*Framework, error) {
	return memoized(ctx, c, "framework:"+slug, func(ctx context.Context) (*Framework, error) {
		return c.Store.GetFrameworkBySlug(ctx, slug)
	})
}

func (c *CachedStore) ListLibrariesByFramework(ctx context.Context, frameworkID int64) ([]Library, error) {
	return memoized(ctx, c, "framework-libraries:"+strconv.FormatInt(frameworkID, 10), func(ctx context.Context) ([]Library, error) {
		return c.Store.ListLibrariesByFramework(ctx, frameworkID)
	})
}

func (c *CachedStore) GetLibraryBySlug(ctx context.Context, slug string) (*Library, error) {
	return memoized(ctx, c, "library:"+slug, func(ctx context.Context) (*Library, error) {
		return c.Store.GetLibraryBySlug(ctx, slug)
	})
}

func (c *CachedStore) ListTags(ctx context.Context) ([]Tag, error) {
	return memoized(ctx, c, "tags", c.Store.ListTags)
}

func (c *CachedStore) GetTagBySlug(ctx context.Context, slug string) (*Tag, error) {
	return memoized(ctx, c, "tag:"+slug, func(ctx context.Context) (*Tag, error) {
		return c.Store.GetTagBySlug(ctx, slug)
	})
}

func (c *CachedStore) ListLibrariesByTag(ctx context.Context, tagID int64) ([]Library, error) {
	return memoized(ctx, c, "tag-libraries:"+strconv.FormatInt(tagID, 10), func(ctx context.Context) ([]Library, error) {
		return c.Store.ListLibrariesByTag(ctx, tagID)
	})
}

func (c *CachedStore) QueryLibraries(ctx context.Context, q LibraryQuery) (*LibraryPage, error) {
	q = q.Normalize()
	key := fmt.Sprintf("libraries:%s|%s|%s|%s|%s|%d|%d", q.Framework, q.Styling, q.Pricing, q.Stars, q.Sort, q.Page, q.Limit)
	return memoized(ctx, c, key, func(ctx context.Context) (*LibraryPage, error) {
		return c.Store.QueryLibraries(ctx, q)
	})
}

func (c *CachedStore) ListNPMPackages(ctx context.Context) ([]string, error) {
	return memoized(ctx, c, "npm-packages", c.Store.ListNPMPackages)
}

func (c *CachedStore) GetPage(ctx context.Context, slug string) (*Page, error) {
	return memoized(ctx, c, "page:"+slug, func(ctx context.Context) (*Page, error) {
		return c.Store.GetPage(ctx, slug)
	})
}

// ClearPrefix drops memoized entries whose key starts with prefix and
// returns how many were removed.
func (c *CachedStore) ClearPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *CachedStore) clearKey(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return 0
	}
	delete(c.entries, key)
	return 1
}

// ClearAll drops every memoized entry.
func (c *CachedStore) ClearAll() int {
	return c.ClearPrefix("")
}

// ClearPath drops the entries that feed the page at path. Unknown paths
// clear everything.
func (c *CachedStore) ClearPath(path string) int {
	path = "/" + strings.Trim(path, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(segments) == 2 && segments[0] == "libraries":
		// Every list that may contain the library goes too.
		return c.clearKey("library:"+segments[1]) +
			c.ClearPrefix("libraries:") +
			c.ClearPrefix("framework-libraries:") +
			c.ClearPrefix("tag-libraries:") +
			c.clearKey("npm-packages")
	case len(segments) == 2 && segments[0] == "frameworks":
		return c.clearKey("framework:"+segments[1]) + c.ClearPrefix("framework-libraries:")
	case len(segments) == 2 && segments[0] == "tags":
		return c.clearKey("tag:"+segments[1]) + c.ClearPrefix("tag-libraries:")
	case path == "/about":
		return c.clearKey("page:about")
	default:
		return c.ClearAll()
	}
}

func (c *CachedStore) UpsertTag(ctx context.Context, t *Tag) error {
	defer c.ClearAll()
	return c.Store.UpsertTag(ctx, t)
}

func (c *CachedStore) UpsertLabel(ctx context.Context, l *Label) error {
	defer c.ClearAll()
	return c.Store.UpsertLabel(ctx, l)
}

func (c *CachedStore) UpsertFramework(ctx context.Context, f *Framework) error {
	defer c.ClearAll()
	return c.Store.UpsertFramework(ctx, f)
}

func (c *CachedStore) UpsertLibrary(ctx context.Context, l *Library) error {
	defer c.ClearAll()
	return c.Store.UpsertLibrary(ctx, l)
}

func (c *CachedStore) UpsertPage(ctx context.Context, p *Page) error {
	defer c.ClearAll()
	return c.Store.UpsertPage(ctx, p)
}
