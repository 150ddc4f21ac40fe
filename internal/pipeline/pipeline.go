// Package pipeline sequences fetch, forecast, rank, and annotate around the
// result cache, and holds the latest computed tuple for the read API.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
	"github.com/couchcryptid/outbreak-forecast-service/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast-service/internal/observability"
)

// DataSource provides the raw inputs of a pass.
type DataSource interface {
	FetchCaseRecords(ctx context.Context) ([]domain.CaseRecord, error)
	FetchGeoMetadata(ctx context.Context) (json.RawMessage, error)
}

// Forecaster runs the per-location forecasting fan-out.
type Forecaster interface {
	ForecastAll(ctx context.Context, series []domain.LocationSeries, holdout bool) ([]forecast.Result, error)
}

// ResultCache memoizes a full pass behind a freshness window.
type ResultCache interface {
	GetOrCompute(ctx context.Context, ttl time.Duration, compute func(context.Context) (*domain.Payload, error)) (*domain.Payload, bool, error)
}

// Publisher pushes the top-risk summary to downstream consumers.
type Publisher interface {
	PublishTopRisk(ctx context.Context, payload *domain.Payload) error
}

// Options carry the orchestration knobs owned by this layer. The TTL lives
// here, not in the cache: the cache is a generic freshness-gated memoizer.
type Options struct {
	TTL             time.Duration
	TopN            int
	MeasureAccuracy bool
	Clock           clockwork.Clock
}

// Pipeline is the orchestrator for the forecasting engine.
type Pipeline struct {
	source    DataSource
	engine    Forecaster
	cache     ResultCache
	publisher Publisher // nil when publishing is disabled
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options

	mu      sync.RWMutex
	payload *domain.Payload
	geo     json.RawMessage
}

// New creates a Pipeline.
func New(source DataSource, engine Forecaster, cache ResultCache, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		source:    source,
		engine:    engine,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// Snapshot returns the latest results; ok is false until the first pass.
func (p *Pipeline) Snapshot() (*domain.Payload, json.RawMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.payload, p.geo, p.payload != nil
}

// ProcessData runs one cache-gated pass and returns the full result tuple.
// Within the freshness window the stored payload is returned verbatim; on a
// miss the whole pipeline recomputes and the entry is replaced wholesale.
func (p *Pipeline) ProcessData(ctx context.Context) (*domain.Payload, json.RawMessage, error) {
	geo, err := p.source.FetchGeoMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}

	payload, hit, err := p.cache.GetOrCompute(ctx, p.opts.TTL, p.compute)
	if err != nil {
		return nil, nil, err
	}
	if hit {
		p.metrics.CacheHits.Inc()
		p.logger.Info("serving cached forecast", "generated_at", payload.GeneratedAt)
	} else {
		p.metrics.CacheMisses.Inc()
		p.publish(ctx, payload)
	}

	p.mu.Lock()
	p.payload = payload
	p.geo = geo
	p.mu.Unlock()

	return payload, geo, nil
}

// Run executes ProcessData once, then again on every tick until the context
// is cancelled. The cache decides whether a tick actually recomputes.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if _, _, err := p.ProcessData(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if _, _, err := p.ProcessData(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// A failed refresh keeps the previous snapshot serving.
				p.logger.Error("forecast refresh failed", "error", err)
			}
		}
	}
}

// compute is the full fetch-forecast-rank-annotate pass.
func (p *Pipeline) compute(ctx context.Context) (*domain.Payload, error) {
	start := time.Now()
	p.logger.Info("computing forecast", "measure_accuracy", p.opts.MeasureAccuracy)

	records, err := p.source.FetchCaseRecords(ctx)
	if err != nil {
		return nil, err
	}
	series := domain.BuildSeries(records)

	results, err := p.engine.ForecastAll(ctx, series, false)
	if err != nil {
		return nil, err
	}

	growth := make([]domain.LocationGrowth, 0, len(results))
	var forecasted, short, failed int
	for _, r := range results {
		switch r.Status {
		case forecast.Forecasted:
			forecasted++
			growth = append(growth, domain.LocationGrowth{Key: r.Key, Growth: r.GrowthRatio})
		case forecast.SkippedShortSeries:
			short++
		case forecast.SkippedFitFailure:
			failed++
			p.logger.Debug("model fit failed, location excluded from ranking", "location", r.Key, "error", r.Err)
		}
	}
	p.metrics.LocationsForecasted.Add(float64(forecasted))
	p.metrics.LocationsSkippedShort.Add(float64(short))
	p.metrics.LocationsFitFailed.Add(float64(failed))
	p.logger.Info("forecast pass complete",
		"locations", len(series), "forecasted", forecasted,
		"skipped_short", short, "fit_failed", failed)

	ranked := domain.Rank(growth)

	buckets := make(map[string]int, len(series))
	for _, s := range series {
		buckets[s.Key] = domain.MinBucket
	}
	for _, r := range ranked {
		buckets[r.Location] = r.Bucket
	}

	annotated := make([]domain.AnnotatedRecord, len(records))
	for i, rec := range records {
		key := rec.LocationKey()
		b := buckets[key]
		annotated[i] = domain.AnnotatedRecord{
			CaseRecord: rec,
			Location:   key,
			RiskBucket: b,
			RiskLabel:  domain.Label(b),
		}
	}

	topN := p.opts.TopN
	if topN > len(ranked) {
		topN = len(ranked)
	}
	top := make([]string, topN)
	for i := 0; i < topN; i++ {
		top[i] = ranked[i].Location
	}

	metrics := map[string]float64{}
	if p.opts.MeasureAccuracy {
		metrics, err = p.measureAccuracy(ctx, series)
		if err != nil {
			return nil, err
		}
	}

	totalCases, totalDeaths := totals(records)

	payload := &domain.Payload{
		Records:      annotated,
		Ranked:       ranked,
		TopLocations: top,
		Metrics:      metrics,
		TotalCases:   totalCases,
		TotalDeaths:  totalDeaths,
		GeneratedAt:  p.opts.Clock.Now(),
	}

	p.metrics.ForecastRuns.Inc()
	p.metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	p.metrics.RankedLocations.Set(float64(len(ranked)))
	p.metrics.LastRunTimestamp.Set(float64(payload.GeneratedAt.Unix()))
	return payload, nil
}

// measureAccuracy reruns the engine with a train/holdout split. The
// production ranking from the first pass is untouched; this pass only
// yields the per-location SMAPE map.
func (p *Pipeline) measureAccuracy(ctx context.Context, series []domain.LocationSeries) (map[string]float64, error) {
	results, err := p.engine.ForecastAll(ctx, series, true)
	if err != nil {
		return nil, fmt.Errorf("accuracy pass: %w", err)
	}
	metrics := make(map[string]float64)
	for _, r := range results {
		if r.Status == forecast.Forecasted {
			metrics[r.Key] = r.SMAPE
		}
	}
	return metrics, nil
}

// publish pushes the freshly computed summary, best-effort.
func (p *Pipeline) publish(ctx context.Context, payload *domain.Payload) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishTopRisk(ctx, payload); err != nil {
		p.logger.Warn("publishing risk summary failed", "error", err)
	}
}

// totals sums the latest cumulative counts per location.
func totals(records []domain.CaseRecord) (cases, deaths int) {
	latest := make(map[string]domain.CaseRecord)
	for _, r := range records {
		key := r.LocationKey()
		if cur, ok := latest[key]; !ok || r.Date.After(cur.Date) {
			latest[key] = r
		}
	}
	for _, r := range latest {
		cases += r.Cases
		deaths += r.Deaths
	}
	return cases, deaths
}
