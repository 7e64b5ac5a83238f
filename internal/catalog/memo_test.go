package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts backend reads and can be made to fail.
type countingStore struct {
	Store
	frameworks atomic.Int32
	pages      atomic.Int32
	libraries  atomic.Int32
	packages   atomic.Int32
	release    chan struct{}
	fail       error
}

func (s *countingStore) ListFrameworks(ctx context.Context) ([]Framework, error) {
	s.frameworks.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return []Framework{{ID: 1, Name: "React", Slug: "react"}}, nil
}

func (s *countingStore) GetPage(ctx context.Context, slug string) (*Page, error) {
	s.pages.Add(1)
	return &Page{Slug: slug, Title: "About"}, nil
}

func (s *countingStore) GetLibraryBySlug(ctx context.Context, slug string) (*Library, error) {
	s.libraries.Add(1)
	return &Library{Slug: slug}, nil
}

func (s *countingStore) ListNPMPackages(ctx context.Context) ([]string, error) {
	s.packages.Add(1)
	return []string{"react-aria"}, nil
}

func (s *countingStore) UpsertPage(ctx context.Context, p *Page) error {
	return nil
}

func TestCachedStore_ServesWithinTTL(t *testing.T) {
	backend := &countingStore{}
	c := NewCachedStore(backend, time.Minute)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for range 3 {
		_, err := c.ListFrameworks(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.frameworks.Load())

	now = now.Add(time.Minute)
	_, err := c.ListFrameworks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.frameworks.Load())
}

func TestCachedStore_ErrorsAreNotMemoized(t *testing.T) {
	backend := &countingStore{fail: errors.New("db down")}
	c := NewCachedStore(backend, time.Minute)

	_, err := c.ListFrameworks(context.Background())
	require.Error(t, err)
	_, err = c.ListFrameworks(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), backend.frameworks.Load())
}

func TestCachedStore_ConcurrentMissesShareOneLoad(t *testing.T) {
	backend := &countingStore{release: make(chan struct{})}
	c := NewCachedStore(backend, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.ListFrameworks(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return backend.frameworks.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, int32(1), backend.frameworks.Load())
}

func TestCachedStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	backend := &countingStore{release: make(chan struct{})}
	c := NewCachedStore(backend, time.Minute)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ListFrameworks(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return backend.frameworks.Load() == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	var got []Framework
	go func() {
		var err error
		got, err = c.ListFrameworks(context.Background())
		secondErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(backend.release)
	require.NoError(t, <-secondErr)
	require.Len(t, got, 1)
	assert.Equal(t, "react", got[0].Slug)
	assert.Equal(t, int32(1), backend.frameworks.Load())
}

func TestCachedStore_ClearPathLibraryIsExact(t *testing.T) {
	backend := &countingStore{}
	c := NewCachedStore(backend, time.Minute)
	ctx := context.Background()

	_, _ = c.GetLibraryBySlug(ctx, "ark")
	_, _ = c.GetLibraryBySlug(ctx, "ark-ui")
	_, _ = c.ListNPMPackages(ctx)

	assert.Equal(t, 2, c.ClearPath("/libraries/ark"))

	_, _ = c.GetLibraryBySlug(ctx, "ark")
	_, _ = c.GetLibraryBySlug(ctx, "ark-ui")
	_, _ = c.ListNPMPackages(ctx)
	assert.Equal(t, int32(3), backend.libraries.Load())
	assert.Equal(t, int32(2), backend.packages.Load())
}

func TestCachedStore_ClearPath(t *testing.T) {
	backend := &countingStore{}
	c := NewCachedStore(backend, time.Minute)
	ctx := context.Background()

	_, _ = c.GetPage(ctx, "about")
	_, _ = c.ListFrameworks(ctx)

	assert.Equal(t, 1, c.ClearPath("/about"))
	_, _ = c.GetPage(ctx, "about")
	_, _ = c.ListFrameworks(ctx)
	assert.Equal(t, int32(2), backend.pages.Load())
	assert.Equal(t, int32(1), backend.frameworks.Load())

	assert.Equal(t, 2, c.ClearPath("/"))
}

func TestCachedStore_WritesClearMemo(t *testing.T) {
	backend := &countingStore{}
	c := NewCachedStore(backend, time.Minute)
	ctx := context.Background()

	_, _ = c.GetPage(ctx, "about")
	require.NoError(t, c.UpsertPage(ctx, &Page{Slug: "about"}))
	_, _ = c.GetPage(ctx, "about")
	assert.Equal(t, int32(2), backend.pages.Load())
}
