package npmstats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// PackageLister returns the npm package names worth keeping warm.
type PackageLister func(ctx context.Context) ([]string, error)

// Warmer periodically loads every listed package through a Provider so page
// renders find a fresh cache entry. Fresh entries are left alone.
type Warmer struct {
	provider *Provider
	list     PackageLister
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewWarmer creates a Warmer that runs every interval (the provider's
// freshness window when interval is zero).
func NewWarmer(provider *Provider, list PackageLister, interval time.Duration) *Warmer {
	if interval <= 0 {
		interval = provider.FreshnessWindow()
	}
	return &Warmer{
		provider: provider,
		list:     list,
		interval: interval,
		clock:    provider.clock,
		logger:   provider.logger,
	}
}

// Run warms once immediately, then on every tick, until ctx is done.
func (w *Warmer) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.WarmOnce(ctx)
	for {
		select {
		case <-ticker.Chan():
			w.WarmOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// WarmOnce loads each listed package and returns how many have data.
func (w *Warmer) WarmOnce(ctx context.Context) int {
	pkgs, err := w.list(ctx)
	if err != nil {
		w.logger.Warn("npm stats warmer could not list packages", "error", err)
		return 0
	}

	withData := 0
	for _, pkg := range pkgs {
		if ctx.Err() != nil {
			break
		}
		if w.provider.GetSeries(ctx, pkg) != nil {
			withData++
		}
	}
	w.logger.Info("npm stats warmed", "packages", len(pkgs), "with_data", withData)
	return withData
}
