// Package server provides the HTTP server: the JSON API, operator endpoints
// and the mounted HTML pages.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"uikits/internal/catalog"
	"uikits/internal/core"
	"uikits/internal/npmstats"
	"uikits/internal/pkg/npmclient"
)

const healthTimeout = 2 * time.Second

// StatsProvider is the part of *npmstats.Provider the API uses.
type StatsProvider interface {
	Summary(ctx context.Context, pkg string) (npmstats.DownloadSeries, npmstats.Summary)
	Evict(ctx context.Context, pkgs ...string) (int, error)
	EvictPrefix(ctx context.Context, prefix string) (int, error)
	Refresh(ctx context.Context, pkg string) (npmstats.DownloadSeries, bool)
}

// CatalogCache is the memo in front of the catalog store.
type CatalogCache interface {
	ClearPath(path string) int
	ClearAll() int
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the JSON and operator handlers.
type Handler struct {
	catalog catalog.Reader
	memo    CatalogCache
	stats   StatsProvider
	storage Pinger
	logger  *slog.Logger
}

// NewHandler creates a handler. memo and storage may be nil.
func NewHandler(reader catalog.Reader, memo CatalogCache, stats StatsProvider, storage Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog: reader,
		memo:    memo,
		stats:   stats,
		storage: storage,
		logger:  logger,
	}
}

// Libraries handles GET /api/libraries.
func (h *Handler) Libraries(c echo.Context) error {
	q, err := catalog.ParseLibraryQuery(c.QueryParams())
	if err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}
	page, err := h.catalog.QueryLibraries(c.Request().Context(), q)
	if err != nil {
		return handleError(c, core.NewStorageError("failed to fetch libraries", err))
	}
	return c.JSON(http.StatusOK, page)
}

type npmStatsResponse struct {
	Package        string                  `json:"package"`
	Downloads      npmstats.DownloadSeries `json:"downloads"`
	Total          int64                   `json:"total"`
	FormattedTotal string                  `json:"formattedTotal"`
	Trending       bool                    `json:"trending"`
	GrowthPercent  *float64                `json:"growthPercent"`
}

// NPMStats handles GET /api/npm/*. Scoped names arrive as /api/npm/@scope/name.
// A package without data answers 200 with null downloads.
func (h *Handler) NPMStats(c echo.Context) error {
	pkg, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid package name", err))
	}
	pkg = strings.Trim(pkg, "/")
	if err := npmclient.ValidatePackageName(pkg); err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}

	series, sum := h.stats.Summary(c.Request().Context(), pkg)
	resp := npmStatsResponse{
		Package:        pkg,
		Downloads:      series,
		Total:          sum.Total,
		FormattedTotal: sum.FormattedTotal,
		Trending:       sum.Trending,
	}
	if sum.HasGrowth {
		resp.GrowthPercent = &sum.GrowthPercent
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	return c.JSON(http.StatusOK, resp)
}

type revalidateRequest struct {
	Paths    []string `json:"paths"`
	Packages []string `json:"packages"`
	Prefix   *string  `json:"prefix"`
	Refresh  bool     `json:"refresh"`
}

type revalidateResponse struct {
	Revalidated bool  `json:"revalidated"`
	Cleared     int   `json:"cleared"`
	Evicted     int   `json:"evicted"`
	Refreshed   int   `json:"refreshed"`
	Now         int64 `json:"now"`
}

// Revalidate handles POST /api/revalidate. Paths clear memoized catalog
// reads; a /libraries/:slug path also evicts that library's npm package.
// Packages and prefix evict first-tier statistics only, so a persisted entry
// younger than the freshness window is still served afterwards. With
// refresh set, every named package is fetched from npm again; a failed
// fetch leaves its stored entry in place.
func (h *Handler) Revalidate(c echo.Context) error {
	var req revalidateRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body", err))
	}
	if len(req.Paths) == 0 && len(req.Packages) == 0 && req.Prefix == nil {
		return handleError(c, core.NewInvalidRequestError("one of paths, packages or prefix is required", nil))
	}

	ctx := c.Request().Context()
	resp := revalidateResponse{Revalidated: true, Now: time.Now().UnixMilli()}
	packages := append([]string(nil), req.Packages...)

	for _, p := range req.Paths {
		if !strings.HasPrefix(p, "/") {
			return handleError(c, core.NewInvalidRequestError("paths must start with /", nil))
		}
		if h.memo != nil {
			resp.Cleared += h.memo.ClearPath(p)
		}
		if slug, ok := strings.CutPrefix(p, "/libraries/"); ok && slug != "" && !strings.Contains(slug, "/") {
			lib, err := h.catalog.GetLibraryBySlug(ctx, slug)
			switch {
			case err == nil && lib.NPMPackage != "":
				packages = append(packages, lib.NPMPackage)
			case err != nil && !errors.Is(err, catalog.ErrNotFound):
				return handleError(c, core.NewStorageError("failed to resolve library", err))
			}
		}
	}

	if len(packages) > 0 {
		n, err := h.stats.Evict(ctx, packages...)
		if err != nil {
			return handleError(c, core.NewStorageError("failed to evict npm stats", err))
		}
		resp.Evicted += n
	}
	if req.Prefix != nil {
		n, err := h.stats.EvictPrefix(ctx, *req.Prefix)
		if err != nil {
			return handleError(c, core.NewStorageError("failed to evict npm stats", err))
		}
		resp.Evicted += n
	}
	if req.Refresh {
		for _, pkg := range packages {
			if _, ok := h.stats.Refresh(ctx, pkg); ok {
				resp.Refreshed++
			}
		}
	}

	h.logger.Info("revalidated",
		"paths", len(req.Paths),
		"packages", len(packages),
		"cleared", resp.Cleared,
		"evicted", resp.Evicted,
		"refreshed", resp.Refreshed,
	)
	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	if h.storage == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "storage": "unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "storage": "ok"})
}

// handleError converts application errors to JSON responses.
func handleError(c echo.Context, err error) error {
	var appErr *core.AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.HTTPStatusCode(), appErr.ToJSON())
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if s, ok := httpErr.Message.(string); ok {
			msg = s
		}
		return c.JSON(httpErr.Code, map[string]any{
			"error": map[string]any{
				"type":    "http_error",
				"message": msg,
			},
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
