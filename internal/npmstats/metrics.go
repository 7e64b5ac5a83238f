package npmstats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSkipped        = "skipped"
	outcomeMemoryHit      = "memory_hit"
	outcomeStoreHit       = "store_hit"
	outcomeRefreshed      = "refreshed"
	outcomeEmpty          = "empty"
	outcomeUpstreamFailed = "upstream_failed"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uikits_npm_stats_lookups_total",
		Help: "Download series lookups by outcome",
	}, []string{"outcome"})

	upstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uikits_npm_stats_upstream_duration_seconds",
		Help:    "Duration of npm downloads API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	storeWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uikits_npm_stats_store_write_failures_total",
		Help: "Download series that were fetched but could not be persisted",
	})
)
