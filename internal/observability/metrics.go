package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecasting engine.
type Metrics struct {
	ForecastRuns     prometheus.Counter
	ForecastDuration prometheus.Histogram

	// Per-location outcome tallies. Skips are not errors, but they are
	// counted so a data regression (suddenly everything skipped) is visible.
	LocationsForecasted   prometheus.Counter
	LocationsSkippedShort prometheus.Counter
	LocationsFitFailed    prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	LastRunTimestamp prometheus.Gauge
	RankedLocations  prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ForecastRuns,
		m.ForecastDuration,
		m.LocationsForecasted,
		m.LocationsSkippedShort,
		m.LocationsFitFailed,
		m.CacheHits,
		m.CacheMisses,
		m.LastRunTimestamp,
		m.RankedLocations,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry
// to avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ForecastRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "runs_total",
			Help:      "Total forecasting passes computed (cache misses).",
		}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "outbreak_forecast",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-forecast-rank pass.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LocationsForecasted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "locations_forecasted_total",
			Help:      "Locations that produced a growth ratio.",
		}),
		LocationsSkippedShort: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "locations_skipped_short_total",
			Help:      "Locations excluded for having too little history.",
		}),
		LocationsFitFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "locations_fit_failed_total",
			Help:      "Locations excluded by a numerical fit failure.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "cache_hits_total",
			Help:      "Result-cache reads served without recomputation.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outbreak_forecast",
			Name:      "cache_misses_total",
			Help:      "Result-cache reads that forced a recomputation.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbreak_forecast",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the most recent completed pass.",
		}),
		RankedLocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbreak_forecast",
			Name:      "ranked_locations",
			Help:      "Locations in the current outbreak ranking.",
		}),
	}
}
