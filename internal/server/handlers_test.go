package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uikits/internal/catalog"
	"uikits/internal/core"
	"uikits/internal/npmstats"
	"uikits/internal/storage"
	"uikits/internal/web"
)

const testMasterKey = "test-master-key"

const seed = `
tags:
  - {name: Accessibility, slug: accessibility}
frameworks:
  - {slug: react, name: React}
libraries:
  - {slug: react-aria, name: React Aria, framework: react, npm_package: react-aria, github_stars: 12000}
  - {slug: ark-ui, name: Ark UI, framework: react, npm_package: "@ark-ui/react", github_stars: 3500}
  - {slug: plain, name: Plain, framework: react, github_stars: 5}
`

type fakeStats struct {
	series    map[string]npmstats.DownloadSeries
	asked     []string
	requests  []string
	evicted   []string
	prefixes  []string
	refreshed []string
	err       error
}

func (f *fakeStats) Summary(ctx context.Context, pkg string) (npmstats.DownloadSeries, npmstats.Summary) {
	f.asked = append(f.asked, pkg)
	f.requests = append(f.requests, core.GetRequestID(ctx))
	s := f.series[pkg]
	return s, npmstats.Summarize(s)
}

func (f *fakeStats) Evict(_ context.Context, pkgs ...string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.evicted = append(f.evicted, pkgs...)
	return len(pkgs), nil
}

func (f *fakeStats) EvictPrefix(_ context.Context, prefix string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.prefixes = append(f.prefixes, prefix)
	return 3, nil
}

func (f *fakeStats) Refresh(_ context.Context, pkg string) (npmstats.DownloadSeries, bool) {
	f.refreshed = append(f.refreshed, pkg)
	s, ok := f.series[pkg]
	return s, ok
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type failingReader struct{ catalog.Reader }

func (failingReader) QueryLibraries(context.Context, catalog.LibraryQuery) (*catalog.LibraryPage, error) {
	return nil, errors.New("connection reset")
}

type fixture struct {
	srv   *Server
	stats *fakeStats
	memo  *catalog.CachedStore
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	db, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "server.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := catalog.NewStore(context.Background(), db)
	require.NoError(t, err)
	_, err = catalog.LoadSeed(context.Background(), store, strings.NewReader(seed))
	require.NoError(t, err)
	memo := catalog.NewCachedStore(store, time.Minute)

	stats := &fakeStats{series: map[string]npmstats.DownloadSeries{
		"react-aria": {{Day: "2026-10-14", Downloads: 1200}, {Day: "2026-10-15", Downloads: 1300}},
	}}
	pages, err := web.New(memo, stats, nil)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{MasterKey: testMasterKey}
	}
	srv := New(Dependencies{
		Catalog:      memo,
		CatalogCache: memo,
		Stats:        stats,
		Pages:        pages,
		Storage:      db,
	}, cfg)
	return &fixture{srv: srv, stats: stats, memo: memo}
}

func (f *fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	inner, ok := decode(t, rec)["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return inner["type"].(string)
}

func TestLibrariesAPI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/libraries?sort=popular&limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["totalCount"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 2, body["totalPages"])
	libs := body["libraries"].([]any)
	require.Len(t, libs, 2)
	assert.Equal(t, "react-aria", libs[0].(map[string]any)["slug"])

	rec = f.do(http.MethodGet, "/api/libraries?page=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_error", errorType(t, rec))

	rec = f.do(http.MethodGet, "/api/libraries?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLibrariesAPI_StoreFailure(t *testing.T) {
	srv := New(Dependencies{Catalog: failingReader{}, Stats: &fakeStats{}}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/libraries", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "storage_error", errorType(t, rec))
}

func TestNPMStatsAPI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/npm/react-aria", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "react-aria", body["package"])
	assert.EqualValues(t, 2500, body["total"])
	assert.Equal(t, "2.5k", body["formattedTotal"])
	assert.Equal(t, false, body["trending"])
	assert.Nil(t, body["growthPercent"])
	assert.Len(t, body["downloads"], 2)

	rec = f.do(http.MethodGet, "/api/npm/@ark-ui/react", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "@ark-ui/react", body["package"])
	assert.Nil(t, body["downloads"])
	assert.Equal(t, "0", body["formattedTotal"])

	rec = f.do(http.MethodGet, "/api/npm/%40ark-ui/react", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "@ark-ui/react", decode(t, rec)["package"])

	assert.Equal(t, []string{"react-aria", "@ark-ui/react", "@ark-ui/react"}, f.stats.asked)
}

func TestNPMStatsAPI_InvalidNames(t *testing.T) {
	f := newFixture(t, nil)

	for _, target := range []string{"/api/npm/", "/api/npm/a%20b", "/api/npm/a/b/c", "/api/npm/not-scoped/x"} {
		rec := f.do(http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	assert.Empty(t, f.stats.asked)
}

func TestRevalidate(t *testing.T) {
	auth := map[string]string{"Authorization": "Bearer " + testMasterKey}

	t.Run("requires master key", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/api/revalidate", `{"packages":["react-aria"]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.stats.evicted)
	})

	t.Run("disabled without configured key", func(t *testing.T) {
		f := newFixture(t, &Config{})
		rec := f.do(http.MethodPost, "/api/revalidate", `{"packages":["react-aria"]}`, auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects empty and malformed bodies", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/revalidate", `{}`, auth).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/revalidate", `{"packages":`, auth).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/revalidate", `{"paths":["libraries"]}`, auth).Code)
	})

	t.Run("evicts packages and prefix", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/api/revalidate", `{"packages":["react-aria"],"prefix":"@ark-ui/"}`, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["revalidated"])
		assert.EqualValues(t, 4, body["evicted"])
		assert.Equal(t, []string{"react-aria"}, f.stats.evicted)
		assert.Equal(t, []string{"@ark-ui/"}, f.stats.prefixes)
	})

	t.Run("library path clears memo and evicts its package", func(t *testing.T) {
		f := newFixture(t, nil)
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/libraries/ark-ui", "", nil).Code)

		rec := f.do(http.MethodPost, "/api/revalidate", `{"paths":["/libraries/ark-ui"]}`, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"@ark-ui/react"}, f.stats.evicted)
		assert.Positive(t, decode(t, rec)["cleared"])
	})

	t.Run("evicts without refetching by default", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/api/revalidate", `{"packages":["react-aria"]}`, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.stats.refreshed)
		assert.EqualValues(t, 0, decode(t, rec)["refreshed"])
	})

	t.Run("refresh refetches named packages", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/api/revalidate",
			`{"paths":["/libraries/ark-ui"],"packages":["react-aria"],"refresh":true}`, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"react-aria", "@ark-ui/react"}, f.stats.refreshed)
		// Only react-aria has upstream data in the fixture.
		assert.EqualValues(t, 1, decode(t, rec)["refreshed"])
	})

	t.Run("eviction failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.stats.err = errors.New("redis down")
		rec := f.do(http.MethodPost, "/api/revalidate", `{"packages":["react-aria"]}`, auth)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["storage"])

	srv := New(Dependencies{Stats: &fakeStats{}, Storage: fakePinger{err: errors.New("refused")}}, nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}
