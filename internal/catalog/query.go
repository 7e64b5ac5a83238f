package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Sort orders accepted by QueryLibraries.
const (
	SortName       = "name"
	SortLatest     = "latest"
	SortComponents = "components"
	SortDownloads  = "downloads"
	SortPopular    = "popular"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// starBuckets maps the stars filter values to a minimum star count.
var starBuckets = map[string]int64{
	"1000+":  1000,
	"5000+":  5000,
	"10000+": 10000,
}

// LibraryQuery filters, sorts and pages the library listing.
// Empty or "all" filter values match everything.
type LibraryQuery struct {
	Framework string
	Styling   string
	Pricing   string
	Stars     string
	Sort      string
	Page      int
	Limit     int
}

// LibraryPage is one page of QueryLibraries results.
type LibraryPage struct {
	Libraries  []Library `json:"libraries"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

// ParseLibraryQuery reads page, limit, sort, framework, theme (or styling),
// pricing and stars from URL parameters. Malformed page or limit values are
// an error; an unknown sort falls back to name.
func ParseLibraryQuery(v url.Values) (LibraryQuery, error) {
	q := LibraryQuery{
		Framework: v.Get("framework"),
		Styling:   v.Get("theme"),
		Pricing:   v.Get("pricing"),
		Stars:     v.Get("stars"),
		Sort:      v.Get("sort"),
	}
	if q.Styling == "" {
		q.Styling = v.Get("styling")
	}

	var err error
	if q.Page, err = parsePositive(v.Get("page"), 1); err != nil {
		return q, fmt.Errorf("invalid page: %w", err)
	}
	if q.Limit, err = parsePositive(v.Get("limit"), DefaultPageSize); err != nil {
		return q, fmt.Errorf("invalid limit: %w", err)
	}
	if q.Limit > MaxPageSize {
		return q, fmt.Errorf("invalid limit: must be at most %d", MaxPageSize)
	}
	return q.Normalize(), nil
}

func parsePositive(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1")
	}
	return n, nil
}

// Normalize trims values, drops "all" filters and applies defaults and bounds.
func (q LibraryQuery) Normalize() LibraryQuery {
	q.Framework = filterValue(q.Framework)
	q.Styling = filterValue(q.Styling)
	q.Pricing = filterValue(q.Pricing)
	q.Stars = filterValue(q.Stars)
	if _, ok := starBuckets[q.Stars]; !ok {
		q.Stars = ""
	}

	switch q.Sort {
	case SortName, SortLatest, SortComponents, SortDownloads, SortPopular:
	default:
		q.Sort = SortName
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// MinStars returns the lower star bound for the stars filter, or 0.
func (q LibraryQuery) MinStars() int64 {
	return starBuckets[q.Stars]
}

// Offset returns the number of rows skipped before this page.
func (q LibraryQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Values renders q back into URL parameters, omitting defaults.
// Used to build pagination links.
func (q LibraryQuery) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("framework", q.Framework)
	set("theme", q.Styling)
	set("pricing", q.Pricing)
	set("stars", q.Stars)
	if q.Sort != SortName {
		set("sort", q.Sort)
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit != DefaultPageSize {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func filterValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ""
	}
	return s
}

func totalPages(count, limit int) int {
	if count == 0 || limit <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}
