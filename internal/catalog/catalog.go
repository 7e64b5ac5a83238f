// Package catalog stores and queries the directory content: frameworks,
// component libraries, tags, labels and static page copy.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("catalog entity not found")

// Tag groups libraries and frameworks by topic.
type Tag struct {
	ID   int64  `json:"id" yaml:"-"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
}

// Label is a colored badge shown on library cards ("New", "Pro", ...).
type Label struct {
	ID        int64  `json:"id" yaml:"-"`
	Name      string `json:"name" yaml:"name"`
	Color     string `json:"color" yaml:"color"`
	TextColor string `json:"text_color" yaml:"text_color"`
}

// Framework is a UI framework such as React or Vue.
type Framework struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Website     string `json:"website"`
	LogoURL     string `json:"logo_url"`
	Tags        []Tag  `json:"tags"`
}

// FrameworkRef links a library to one of the frameworks it supports.
type FrameworkRef struct {
	Framework Framework `json:"framework"`
	IsPrimary bool      `json:"is_primary"`
}

// Library is a UI component library listed in the directory.
type Library struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug"`
	Description     string         `json:"description"`
	FrameworkID     int64          `json:"framework_id"`
	Framework       *Framework     `json:"framework,omitempty"`
	Frameworks      []FrameworkRef `json:"frameworks"`
	Tags            []Tag          `json:"tags"`
	Labels          []Label        `json:"labels"`
	Website         string         `json:"website"`
	GitHubURL       string         `json:"github_url"`
	NPMPackage      string         `json:"npm_package"`
	GitHubStars     int64          `json:"github_stars"`
	NPMDownloads    int64          `json:"npm_downloads"`
	TotalComponents int            `json:"total_components"`
	Styling         string         `json:"styling"`
	Pricing         string         `json:"pricing"`
	LastUpdate      time.Time      `json:"last_update"`
	Images          []string       `json:"images"`
}

// Page is editable copy for static pages such as /about.
type Page struct {
	Slug    string `json:"slug" yaml:"slug"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// Reader is the read side used by the web surface.
type Reader interface {
	ListFrameworks(ctx context.Context) ([]Framework, error)
	GetFrameworkBySlug(ctx context.Context, slug string) (*Framework, error)
	// ListLibrariesByFramework returns libraries whose primary or secondary
	// framework is frameworkID, most starred first.
	ListLibrariesByFramework(ctx context.Context, frameworkID int64) ([]Library, error)
	GetLibraryBySlug(ctx context.Context, slug string) (*Library, error)
	ListTags(ctx context.Context) ([]Tag, error)
	GetTagBySlug(ctx context.Context, slug string) (*Tag, error)
	ListLibrariesByTag(ctx context.Context, tagID int64) ([]Library, error)
	// SearchLibraries matches name or description case-insensitively,
	// most starred first. A blank query matches nothing.
	SearchLibraries(ctx context.Context, query string) ([]Library, error)
	QueryLibraries(ctx context.Context, q LibraryQuery) (*LibraryPage, error)
	// ListNPMPackages returns the distinct npm package names in the catalog.
	ListNPMPackages(ctx context.Context) ([]string, error)
	GetPage(ctx context.Context, slug string) (*Page, error)
}

// Writer is used by the seed loader. Upserts are keyed by slug (name for
// labels) and set the ID on the argument.
type Writer interface {
	UpsertTag(ctx context.Context, t *Tag) error
	UpsertLabel(ctx context.Context, l *Label) error
	UpsertFramework(ctx context.Context, f *Framework) error
	// UpsertLibrary replaces the library's tag, label and framework links.
	UpsertLibrary(ctx context.Context, l *Library) error
	UpsertPage(ctx context.Context, p *Page) error
}

// Store is a complete catalog backend.
type Store interface {
	Reader
	Writer
	Close() error
}

// PageOrPlaceholder returns the page for slug, or a "Page Not Found"
// placeholder when it does not exist. Other errors are returned.
func PageOrPlaceholder(ctx context.Context, r Reader, slug string) (*Page, error) {
	p, err := r.GetPage(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		return &Page{
			Slug:    slug,
			Title:   "Page Not Found",
			Content: "The requested page could not be found.",
		}, nil
	}
	return p, err
}
