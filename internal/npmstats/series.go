// Package npmstats provides 30-day npm download series for catalog
// libraries, persisted in a cache table and refreshed from the public npm
// downloads API at most once per freshness window.
package npmstats

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DayLayout is the calendar-day format used by the npm API and the cache.
	DayLayout = "2006-01-02"

	// IncompleteTrailingDays is how many of the most recent samples are
	// ignored by trend detection; the upstream may not have tallied them yet.
	IncompleteTrailingDays = 2

	// TrendingThreshold is the minimum week-over-week growth, in percent.
	TrendingThreshold = 5.0

	trendWindowDays = 7
)

// DownloadSample is the download count for one calendar day.
type DownloadSample struct {
	Day       string `json:"day" bson:"day"`
	Downloads int64  `json:"downloads" bson:"downloads"`
}

// DownloadSeries is a list of samples ordered ascending by day.
// A nil series means no data is available.
type DownloadSeries []DownloadSample

// CacheEntry is one persisted row of the download statistics cache.
type CacheEntry struct {
	PackageName string         `json:"package_name"`
	Series      DownloadSeries `json:"stats_data"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Summary is the derived view rendered next to a library.
type Summary struct {
	Total          int64   `json:"total"`
	FormattedTotal string  `json:"formattedTotal"`
	Trending       bool    `json:"trending"`
	GrowthPercent  float64 `json:"growthPercent"`
	HasGrowth      bool    `json:"hasGrowth"`
	LatestDay      string  `json:"latestDay,omitempty"`
	Days           int     `json:"days"`
}

// normalizeSeries sorts samples ascending by day and keeps the last sample
// seen for a repeated day. It returns nil for an empty input.
func normalizeSeries(samples []DownloadSample) DownloadSeries {
	if len(samples) == 0 {
		return nil
	}
	byDay := make(map[string]int64, len(samples))
	for _, s := range samples {
		byDay[s.Day] = s.Downloads
	}
	out := make(DownloadSeries, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, DownloadSample{Day: day, Downloads: n})
	}
	// DayLayout sorts lexically in chronological order.
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func validSample(s DownloadSample) error {
	if _, err := time.Parse(DayLayout, s.Day); err != nil {
		return fmt.Errorf("invalid day %q: %w", s.Day, err)
	}
	if s.Downloads < 0 {
		return fmt.Errorf("negative download count %d for %s", s.Downloads, s.Day)
	}
	return nil
}

func cloneSeries(s DownloadSeries) DownloadSeries {
	if s == nil {
		return nil
	}
	out := make(DownloadSeries, len(s))
	copy(out, s)
	return out
}

// TotalDownloads sums the series. A nil series totals 0.
func TotalDownloads(series DownloadSeries) int64 {
	var total int64
	for _, s := range series {
		total += s.Downloads
	}
	return total
}

// GrowthPercent compares the two most recent complete weeks of the series.
// ok is false when there is not enough data or the older week is empty.
func GrowthPercent(series DownloadSeries) (pct float64, ok bool) {
	complete := len(series) - IncompleteTrailingDays
	if complete < 2*trendWindowDays {
		return 0, false
	}
	newer := TotalDownloads(series[complete-trendWindowDays : complete])
	older := TotalDownloads(series[complete-2*trendWindowDays : complete-trendWindowDays])
	if older == 0 {
		return 0, false
	}
	return float64(newer-older) / float64(older) * 100, true
}

// IsTrending reports whether the last complete week grew by at least
// TrendingThreshold percent over the week before it. Series shorter than
// 16 samples are never trending.
func IsTrending(series DownloadSeries) bool {
	pct, ok := GrowthPercent(series)
	return ok && pct >= TrendingThreshold
}

// FormatCount renders n compactly: 1500 -> "1.5k", 2300000 -> "2.3M".
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Summarize computes the values shown on a library page.
func Summarize(series DownloadSeries) Summary {
	total := TotalDownloads(series)
	pct, ok := GrowthPercent(series)
	sum := Summary{
		Total:          total,
		FormattedTotal: FormatCount(total),
		Trending:       ok && pct >= TrendingThreshold,
		GrowthPercent:  pct,
		HasGrowth:      ok,
		Days:           len(series),
	}
	if len(series) > 0 {
		sum.LatestDay = series[len(series)-1].Day
	}
	return sum
}
