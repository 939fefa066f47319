// Package metrics holds the Prometheus collectors for discovery and scoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Popularity scorer
	ScoreRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfradar_popularity_runs_total",
			Help: "Popularity recompute runs by outcome",
		},
		[]string{"status"}, // "ok", "error"
	)

	ScoreRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfradar_popularity_run_duration_seconds",
			Help:    "Duration of popularity recompute runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	BooksScored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfradar_popularity_books_scored",
			Help: "Books with a non-zero score after the last successful run",
		},
	)

	// Discovery
	BlockedCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfradar_discovery_blocked_total",
			Help: "Books excluded from discovery results, by the first rule that matched",
		},
		[]string{"dimension"}, // "taxonomy", "book", "author", "publisher"
	)

	BackfillPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfradar_discovery_backfill_passes_total",
			Help: "Backfill queries issued after filtering",
		},
	)

	DiscoveryUnderfilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfradar_discovery_underfilled_total",
			Help: "Filtered requests that returned fewer books than requested",
		},
	)
)
