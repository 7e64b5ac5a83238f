package npmstats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"uikits/internal/pkg/npmclient"
)

func TestWarmer_WarmOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "fresh-pkg", time.Hour, makeSeries(1))
	f.fetcher.resp = rangeOf(npmclient.DailyDownloads{Day: "2026-10-15", Downloads: 3})

	w := NewWarmer(f.provider, func(context.Context) ([]string, error) {
		return []string{"fresh-pkg", "cold-pkg", ""}, nil
	}, 0)

	assert.Equal(t, 2, w.WarmOnce(context.Background()))
	assert.Equal(t, 1, f.fetcher.count(), "only the cold package is fetched")
	assert.Equal(t, DefaultFreshnessWindow, w.interval)
}

func TestWarmer_ListError(t *testing.T) {
	f := newFixture(t, nil)
	w := NewWarmer(f.provider, func(context.Context) ([]string, error) {
		return nil, errors.New("catalog unavailable")
	}, time.Hour)

	assert.Zero(t, w.WarmOnce(context.Background()))
	assert.Zero(t, f.fetcher.count())
}

func TestWarmer_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.resp = rangeOf(npmclient.DailyDownloads{Day: "2026-10-15", Downloads: 3})

	w := NewWarmer(f.provider, func(context.Context) ([]string, error) {
		return []string{"pkg"}, nil
	}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.fetcher.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("warmer did not stop after cancel")
	}
}
