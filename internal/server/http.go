package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uikits/internal/catalog"
	"uikits/internal/web"
)

// DefaultBodySizeLimit caps request bodies; only the revalidate endpoint
// accepts one.
const DefaultBodySizeLimit int64 = 1 << 20

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string // Bearer token for /api/revalidate; empty disables it
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64  // Max request body size in bytes (default: 1MB)
}

// Dependencies are the components the routes serve from.
type Dependencies struct {
	Catalog      catalog.Reader
	CatalogCache CatalogCache
	Stats        StatsProvider
	Pages        *web.Handler
	Storage      Pinger
	Logger       *slog.Logger
}

// New creates a new HTTP server
func New(deps Dependencies, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	handler := NewHandler(deps.Catalog, deps.CatalogCache, deps.Stats, deps.Storage, logger)

	metricsPath := "/metrics"
	if cfg.MetricsEndpoint != "" {
		// Normalize path to prevent traversal attacks
		metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
	}

	// Global middleware stack (order matters)
	e.Use(requestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))
	e.Use(etag(func(p string) bool {
		return p == metricsPath || p == "/health" || strings.HasPrefix(p, "/static/")
	}))

	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api")
	api.GET("/libraries", handler.Libraries)
	api.GET("/npm/*", handler.NPMStats)
	api.POST("/revalidate", handler.Revalidate, AuthMiddleware(cfg.MasterKey))
	api.RouteNotFound("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	if deps.Pages != nil {
		deps.Pages.Register(e)
	}

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// errorHandler renders errors that escape handlers as JSON.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if herr := handleError(c, err); herr != nil {
			logger.Error("failed to write error response", "error", herr)
		}
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
