// Package web renders the directory's HTML pages from embedded templates.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"uikits/internal/catalog"
	"uikits/internal/npmstats"
)

//go:embed templates/*.html static/*.css static/*.svg
var content embed.FS

var pageNames = []string{
	"home", "frameworks", "framework", "libraries", "library",
	"tags", "tag", "search", "about", "notfound", "error",
}

// StatsSource supplies download statistics for a library page.
// *npmstats.Provider satisfies it.
type StatsSource interface {
	Summary(ctx context.Context, pkg string) (npmstats.DownloadSeries, npmstats.Summary)
}

// Handler serves the HTML pages and their static assets.
type Handler struct {
	catalog catalog.Reader
	stats   StatsSource
	logger  *slog.Logger
	pages   map[string]*template.Template
	static  http.Handler
}

// New parses every page template against the shared layout.
func New(reader catalog.Reader, stats StatsSource, logger *slog.Logger) (*Handler, error) {
	if reader == nil {
		return nil, fmt.Errorf("catalog reader is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(content, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	staticSub, err := fs.Sub(content, "static")
	if err != nil {
		return nil, err
	}

	return &Handler{
		catalog: reader,
		stats:   stats,
		logger:  logger,
		pages:   pages,
		static:  http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))),
	}, nil
}

// Register mounts the page routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.Home)
	e.GET("/frameworks", h.Frameworks)
	e.GET("/frameworks/:slug", h.Framework)
	e.GET("/libraries", h.Libraries)
	e.GET("/libraries/:slug", h.Library)
	e.GET("/tags", h.Tags)
	e.GET("/tags/:slug", h.Tag)
	e.GET("/search", h.Search)
	e.GET("/about", h.About)
	e.GET("/static/*", h.Static)
	e.RouteNotFound("/*", h.NotFound)
}

// Static serves GET /static/* from the embedded assets.
func (h *Handler) Static(c echo.Context) error {
	h.static.ServeHTTP(c.Response().Writer, c.Request())
	return nil
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(c echo.Context) error {
	return h.render(c, http.StatusNotFound, "notfound", base{Title: "Not Found"})
}

func (h *Handler) render(c echo.Context, status int, name string, data any) error {
	tmpl, ok := h.pages[name]
	if !ok {
		return fmt.Errorf("unknown page template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(status)
	_, err := buf.WriteTo(c.Response().Writer)
	return err
}

// fail renders the 404 page for missing entities and the error page for
// anything else.
func (h *Handler) fail(c echo.Context, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return h.NotFound(c)
	}
	h.logger.Error("page render failed", "path", c.Request().URL.Path, "error", err)
	return h.render(c, http.StatusInternalServerError, "error", base{Title: "Something went wrong"})
}
