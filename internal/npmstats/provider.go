package npmstats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"uikits/internal/core"
	"uikits/internal/pkg/npmclient"
)

const (
	// DefaultFreshnessWindow is how long a cached series is served without
	// asking the npm API again.
	DefaultFreshnessWindow = 24 * time.Hour

	// DefaultLookbackDays is the length of the requested range, ending yesterday.
	DefaultLookbackDays = 30
)

// Fetcher requests a daily download range from the npm downloads API.
type Fetcher interface {
	FetchRange(ctx context.Context, pkg string, start, end time.Time) (*npmclient.RangeResponse, error)
}

// FirstTier is an optional cache consulted before the Store. It never
// replaces the Store as the source of truth.
type FirstTier interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, pkg string) (*CacheEntry, error)
	Set(ctx context.Context, entry *CacheEntry) error
	// Delete evicts the named packages and reports how many were present.
	Delete(ctx context.Context, pkgs ...string) (int, error)
	// DeletePrefix evicts every package whose name starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Config tunes a Provider. Zero values select the defaults.
type Config struct {
	FreshnessWindow time.Duration
	LookbackDays    int

	// FirstTier is optional.
	FirstTier FirstTier
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Provider returns download series for npm packages using the cache table
// and, on a miss or stale entry, a single call to the npm downloads API.
// Construct one per process and share it.
type Provider struct {
	store     Store
	fetcher   Fetcher
	tier      FirstTier
	clock     clockwork.Clock
	logger    *slog.Logger
	freshness time.Duration
	lookback  int
}

// New creates a Provider. store and fetcher are required.
func New(cfg Config, store Store, fetcher Fetcher) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("stats store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("npm fetcher is required")
	}

	p := &Provider{
		store:     store,
		fetcher:   fetcher,
		tier:      cfg.FirstTier,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		freshness: cfg.FreshnessWindow,
		lookback:  cfg.LookbackDays,
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.freshness <= 0 {
		p.freshness = DefaultFreshnessWindow
	}
	if p.lookback <= 0 {
		p.lookback = DefaultLookbackDays
	}
	return p, nil
}

// FreshnessWindow returns the configured window.
func (p *Provider) FreshnessWindow() time.Duration {
	return p.freshness
}

// GetSeries returns the download series for pkg, or nil when none is
// available. It never fails: store errors fall through to the npm API and
// npm API errors yield nil with any stale entry left untouched.
func (p *Provider) GetSeries(ctx context.Context, pkg string) DownloadSeries {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		lookups.WithLabelValues(outcomeSkipped).Inc()
		return nil
	}

	if entry := p.fromFirstTier(ctx, pkg); entry != nil {
		lookups.WithLabelValues(outcomeMemoryHit).Inc()
		return entry.Series
	}

	entry, err := p.store.Get(ctx, pkg)
	switch {
	case err == nil:
		if p.isFresh(entry) {
			lookups.WithLabelValues(outcomeStoreHit).Inc()
			p.setFirstTier(ctx, entry)
			return entry.Series
		}
	case errors.Is(err, ErrEntryNotFound):
	default:
		p.logger.Warn("npm stats lookup failed, treating as miss", "package", pkg, "error", err)
	}

	series, ok := p.refresh(ctx, pkg)
	if !ok {
		return nil
	}
	return series
}

// Refresh fetches pkg from the npm API regardless of cache age and stores
// the result. It reports whether the fetch succeeded.
func (p *Provider) Refresh(ctx context.Context, pkg string) (DownloadSeries, bool) {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return nil, false
	}
	return p.refresh(ctx, pkg)
}

// Summary is GetSeries followed by Summarize. The series is returned as well
// so callers can render a chart.
func (p *Provider) Summary(ctx context.Context, pkg string) (DownloadSeries, Summary) {
	series := p.GetSeries(ctx, pkg)
	return series, Summarize(series)
}

// Evict drops packages from the first tier so the next lookup re-reads the
// store. It is a no-op without a first tier.
func (p *Provider) Evict(ctx context.Context, pkgs ...string) (int, error) {
	if p.tier == nil || len(pkgs) == 0 {
		return 0, nil
	}
	return p.tier.Delete(ctx, pkgs...)
}

// EvictPrefix drops every first-tier package starting with prefix.
// An empty prefix clears the tier.
func (p *Provider) EvictPrefix(ctx context.Context, prefix string) (int, error) {
	if p.tier == nil {
		return 0, nil
	}
	return p.tier.DeletePrefix(ctx, prefix)
}

// Range returns the [start, end] days requested for a refresh at now.
func (p *Provider) Range(now time.Time) (start, end time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -p.lookback), today.AddDate(0, 0, -1)
}

func (p *Provider) refresh(ctx context.Context, pkg string) (DownloadSeries, bool) {
	logger := p.logger
	if id := core.GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	now := p.clock.Now()
	start, end := p.Range(now)

	began := p.clock.Now()
	resp, err := p.fetcher.FetchRange(ctx, pkg, start, end)
	upstreamDuration.Observe(p.clock.Since(began).Seconds())
	if err != nil {
		lookups.WithLabelValues(outcomeUpstreamFailed).Inc()
		logger.Warn("npm downloads fetch failed", "package", pkg, "error", err)
		return nil, false
	}

	series, err := seriesFromResponse(resp)
	if err != nil {
		lookups.WithLabelValues(outcomeUpstreamFailed).Inc()
		logger.Warn("npm downloads payload rejected", "package", pkg, "error", err)
		return nil, false
	}
	if series == nil {
		// Unknown or brand new packages report an empty range; nothing to cache.
		lookups.WithLabelValues(outcomeEmpty).Inc()
		return nil, false
	}

	entry := &CacheEntry{PackageName: pkg, Series: series, LastUpdated: now.UTC()}
	if err := p.store.Upsert(ctx, entry); err != nil {
		storeWriteFailures.Inc()
		logger.Error("failed to persist npm stats", "package", pkg, "error", err)
	}
	p.setFirstTier(ctx, entry)

	lookups.WithLabelValues(outcomeRefreshed).Inc()
	logger.Debug("npm stats refreshed", "package", pkg, "days", len(series))
	return series, true
}

func seriesFromResponse(resp *npmclient.RangeResponse) (DownloadSeries, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	samples := make([]DownloadSample, 0, len(resp.Downloads))
	for _, d := range resp.Downloads {
		s := DownloadSample{Day: d.Day, Downloads: d.Downloads}
		if err := validSample(s); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return normalizeSeries(samples), nil
}

func (p *Provider) isFresh(entry *CacheEntry) bool {
	if entry == nil || entry.Series == nil {
		return false
	}
	return p.clock.Since(entry.LastUpdated) < p.freshness
}

func (p *Provider) fromFirstTier(ctx context.Context, pkg string) *CacheEntry {
	if p.tier == nil {
		return nil
	}
	entry, err := p.tier.Get(ctx, pkg)
	if err != nil {
		p.logger.Debug("first-tier stats lookup failed", "package", pkg, "error", err)
		return nil
	}
	if !p.isFresh(entry) {
		return nil
	}
	return entry
}

func (p *Provider) setFirstTier(ctx context.Context, entry *CacheEntry) {
	if p.tier == nil {
		return
	}
	if err := p.tier.Set(ctx, entry); err != nil {
		p.logger.Debug("first-tier stats write failed", "package", entry.PackageName, "error", err)
	}
}
