package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"uikits/internal/catalog"
	"uikits/internal/npmstats"
)

const popularOnHome = 6

type base struct {
	Title  string
	Nav    string
	Search string
}

type homeView struct {
	base
	Frameworks []catalog.Framework
	Popular    []catalog.Library
	Tags       []catalog.Tag
}

type frameworksView struct {
	base
	Frameworks []catalog.Framework
}

type frameworkView struct {
	base
	Framework *catalog.Framework
	Libraries []catalog.Library
}

type librariesView struct {
	base
	Result     *catalog.LibraryPage
	Query      catalog.LibraryQuery
	Frameworks []catalog.Framework
	PrevURL    string
	NextURL    string
	Invalid    string
}

type libraryView struct {
	base
	Library *catalog.Library
	Series  npmstats.DownloadSeries
	Stats   npmstats.Summary
}

type tagsView struct {
	base
	Tags []catalog.Tag
}

type tagView struct {
	base
	Tag       *catalog.Tag
	Libraries []catalog.Library
}

type searchView struct {
	base
	Results []catalog.Library
}

type aboutView struct {
	base
	Page *catalog.Page
}

// Home serves GET /.
func (h *Handler) Home(c echo.Context) error {
	ctx := c.Request().Context()
	frameworks, err := h.catalog.ListFrameworks(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	popular, err := h.catalog.QueryLibraries(ctx, catalog.LibraryQuery{Sort: catalog.SortPopular, Limit: popularOnHome})
	if err != nil {
		return h.fail(c, err)
	}
	tags, err := h.catalog.ListTags(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "home", homeView{
		base:       base{Title: "UI Component Libraries", Nav: "home"},
		Frameworks: frameworks,
		Popular:    popular.Libraries,
		Tags:       tags,
	})
}

// Frameworks serves GET /frameworks.
func (h *Handler) Frameworks(c echo.Context) error {
	frameworks, err := h.catalog.ListFrameworks(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "frameworks", frameworksView{
		base:       base{Title: "Frameworks", Nav: "frameworks"},
		Frameworks: frameworks,
	})
}

// Framework serves GET /frameworks/:slug.
func (h *Handler) Framework(c echo.Context) error {
	ctx := c.Request().Context()
	fw, err := h.catalog.GetFrameworkBySlug(ctx, c.Param("slug"))
	if err != nil {
		return h.fail(c, err)
	}
	libs, err := h.catalog.ListLibrariesByFramework(ctx, fw.ID)
	if err != nil {
		return h.fail(c, err)
	}
	title := fw.Title
	if title == "" {
		title = fw.Name + " UI Libraries"
	}
	return h.render(c, http.StatusOK, "framework", frameworkView{
		base:      base{Title: title, Nav: "frameworks"},
		Framework: fw,
		Libraries: libs,
	})
}

// Libraries serves GET /libraries with the same filters as the JSON API.
// Invalid paging renders the first page with a notice.
func (h *Handler) Libraries(c echo.Context) error {
	ctx := c.Request().Context()
	view := librariesView{base: base{Title: "All Libraries", Nav: "libraries"}}

	q, err := catalog.ParseLibraryQuery(c.QueryParams())
	if err != nil {
		view.Invalid = err.Error()
		q = catalog.LibraryQuery{Framework: q.Framework, Styling: q.Styling, Pricing: q.Pricing, Stars: q.Stars, Sort: q.Sort}.Normalize()
	}
	view.Query = q

	if view.Result, err = h.catalog.QueryLibraries(ctx, q); err != nil {
		return h.fail(c, err)
	}
	if view.Frameworks, err = h.catalog.ListFrameworks(ctx); err != nil {
		return h.fail(c, err)
	}

	if q.Page > 1 {
		prev := q
		prev.Page--
		view.PrevURL = pageURL(prev)
	}
	if q.Page < view.Result.TotalPages {
		next := q
		next.Page++
		view.NextURL = pageURL(next)
	}
	return h.render(c, http.StatusOK, "libraries", view)
}

func pageURL(q catalog.LibraryQuery) string {
	if enc := q.Values().Encode(); enc != "" {
		return "/libraries?" + enc
	}
	return "/libraries"
}

// Library serves GET /libraries/:slug with its download statistics.
func (h *Handler) Library(c echo.Context) error {
	ctx := c.Request().Context()
	lib, err := h.catalog.GetLibraryBySlug(ctx, c.Param("slug"))
	if err != nil {
		return h.fail(c, err)
	}
	view := libraryView{
		base:    base{Title: lib.Name, Nav: "libraries"},
		Library: lib,
	}
	if h.stats != nil && lib.NPMPackage != "" {
		view.Series, view.Stats = h.stats.Summary(ctx, lib.NPMPackage)
	}
	return h.render(c, http.StatusOK, "library", view)
}

// Tags serves GET /tags.
func (h *Handler) Tags(c echo.Context) error {
	tags, err := h.catalog.ListTags(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "tags", tagsView{
		base: base{Title: "Tags", Nav: "tags"},
		Tags: tags,
	})
}

// Tag serves GET /tags/:slug.
func (h *Handler) Tag(c echo.Context) error {
	ctx := c.Request().Context()
	tag, err := h.catalog.GetTagBySlug(ctx, c.Param("slug"))
	if err != nil {
		return h.fail(c, err)
	}
	libs, err := h.catalog.ListLibrariesByTag(ctx, tag.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "tag", tagView{
		base:      base{Title: tag.Name, Nav: "tags"},
		Tag:       tag,
		Libraries: libs,
	})
}

// Search serves GET /search?q=.
func (h *Handler) Search(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	results, err := h.catalog.SearchLibraries(c.Request().Context(), query)
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "search", searchView{
		base:    base{Title: "Search", Search: query},
		Results: results,
	})
}

// About serves GET /about from editable page content.
func (h *Handler) About(c echo.Context) error {
	page, err := catalog.PageOrPlaceholder(c.Request().Context(), h.catalog, "about")
	if err != nil {
		return h.fail(c, err)
	}
	return h.render(c, http.StatusOK, "about", aboutView{
		base: base{Title: page.Title, Nav: "about"},
		Page: page,
	})
}
