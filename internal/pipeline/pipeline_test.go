package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
	"github.com/couchcryptid/outbreak-forecast-service/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast-service/internal/observability"
	"github.com/couchcryptid/outbreak-forecast-service/internal/pipeline"
)

var testGeo = json.RawMessage(`{"type":"FeatureCollection","features":[]}`)

func day(d int) time.Time {
	return time.Date(2020, time.June, d, 0, 0, 0, 0, time.UTC)
}

type stubSource struct {
	records []domain.CaseRecord
	geo     json.RawMessage
	err     error
}

func (s *stubSource) FetchCaseRecords(context.Context) ([]domain.CaseRecord, error) {
	return s.records, s.err
}

func (s *stubSource) FetchGeoMetadata(context.Context) (json.RawMessage, error) {
	return s.geo, nil
}

// stubForecaster maps each series key to a canned outcome. Holdout calls are
// counted separately so tests can assert whether the accuracy pass ran.
type stubForecaster struct {
	results      map[string]forecast.Result
	holdoutCalls int
}

func (f *stubForecaster) ForecastAll(_ context.Context, series []domain.LocationSeries, holdout bool) ([]forecast.Result, error) {
	if holdout {
		f.holdoutCalls++
	}
	out := make([]forecast.Result, len(series))
	for i, s := range series {
		r := f.results[s.Key]
		r.Key = s.Key
		out[i] = r
	}
	return out, nil
}

// passthroughCache always misses and runs compute directly.
type passthroughCache struct{}

func (passthroughCache) GetOrCompute(ctx context.Context, _ time.Duration, compute func(context.Context) (*domain.Payload, error)) (*domain.Payload, bool, error) {
	p, err := compute(ctx)
	return p, false, err
}

// hitCache always serves its stored payload without computing.
type hitCache struct{ payload *domain.Payload }

func (c hitCache) GetOrCompute(context.Context, time.Duration, func(context.Context) (*domain.Payload, error)) (*domain.Payload, bool, error) {
	return c.payload, true, nil
}

type recordingPublisher struct{ calls int }

func (p *recordingPublisher) PublishTopRisk(context.Context, *domain.Payload) error {
	p.calls++
	return nil
}

func testRecords() []domain.CaseRecord {
	return []domain.CaseRecord{
		{Date: day(1), County: "Travis", State: "Texas", FIPS: "48453", Cases: 10, Deaths: 1},
		{Date: day(2), County: "Travis", State: "Texas", FIPS: "48453", Cases: 20, Deaths: 2},
		{Date: day(1), County: "Loving", State: "Texas", FIPS: "48301", Cases: 1, Deaths: 0},
		{Date: day(2), County: "Loving", State: "Texas", FIPS: "48301", Cases: 1, Deaths: 0},
	}
}

func newPipeline(src pipeline.DataSource, fc pipeline.Forecaster, cache pipeline.ResultCache, pub pipeline.Publisher, opts pipeline.Options) (*pipeline.Pipeline, *observability.Metrics) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(day(3))
	}
	return pipeline.New(src, fc, cache, pub, logger, metrics, opts), metrics
}

func TestProcessData_RanksAndAnnotates(t *testing.T) {
	src := &stubSource{records: testRecords(), geo: testGeo}
	fc := &stubForecaster{results: map[string]forecast.Result{
		"Travis, Texas": {Status: forecast.Forecasted, GrowthRatio: 2.0},
		"Loving, Texas": {Status: forecast.SkippedShortSeries},
	}}
	pub := &recordingPublisher{}
	p, _ := newPipeline(src, fc, passthroughCache{}, pub, pipeline.Options{TTL: time.Hour, TopN: 12})

	payload, geo, err := p.ProcessData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testGeo, geo)

	require.Len(t, payload.Ranked, 1, "skipped locations stay out of the ranking")
	assert.Equal(t, "Travis, Texas", payload.Ranked[0].Location)
	assert.Equal(t, 6, payload.Ranked[0].Bucket)
	assert.Equal(t, []string{"Travis, Texas"}, payload.TopLocations)

	require.Len(t, payload.Records, 4, "every input record is annotated")
	byLocation := map[string]domain.AnnotatedRecord{}
	for _, r := range payload.Records {
		byLocation[r.Location] = r
	}
	assert.Equal(t, 6, byLocation["Travis, Texas"].RiskBucket)
	assert.Equal(t, "Very High", byLocation["Travis, Texas"].RiskLabel)
	// Unranked locations read as the lowest tier, not as absent.
	assert.Equal(t, 1, byLocation["Loving, Texas"].RiskBucket)
	assert.Equal(t, "Low", byLocation["Loving, Texas"].RiskLabel)

	// Totals use the latest cumulative count per location.
	assert.Equal(t, 21, payload.TotalCases)
	assert.Equal(t, 2, payload.TotalDeaths)

	assert.Equal(t, 1, pub.calls, "a fresh computation is published")
	assert.Empty(t, payload.Metrics, "no accuracy pass unless requested")
	assert.Equal(t, 0, fc.holdoutCalls)
}

func TestProcessData_TopNTruncates(t *testing.T) {
	records := []domain.CaseRecord{
		{Date: day(1), County: "A", State: "X", Cases: 1},
		{Date: day(1), County: "B", State: "X", Cases: 1},
		{Date: day(1), County: "C", State: "X", Cases: 1},
	}
	src := &stubSource{records: records, geo: testGeo}
	fc := &stubForecaster{results: map[string]forecast.Result{
		"A, X": {Status: forecast.Forecasted, GrowthRatio: 1.5},
		"B, X": {Status: forecast.Forecasted, GrowthRatio: 1.9},
		"C, X": {Status: forecast.Forecasted, GrowthRatio: 1.1},
	}}
	p, _ := newPipeline(src, fc, passthroughCache{}, nil, pipeline.Options{TTL: time.Hour, TopN: 2})

	payload, _, err := p.ProcessData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"B, X", "A, X"}, payload.TopLocations)
	assert.Len(t, payload.Ranked, 3, "the full ranking is kept even when the top list truncates")
}

func TestProcessData_MeasuresAccuracyWhenAsked(t *testing.T) {
	src := &stubSource{records: testRecords(), geo: testGeo}
	fc := &stubForecaster{results: map[string]forecast.Result{
		"Travis, Texas": {Status: forecast.Forecasted, GrowthRatio: 1.2, SMAPE: 0.08},
		"Loving, Texas": {Status: forecast.SkippedShortSeries},
	}}
	p, _ := newPipeline(src, fc, passthroughCache{}, nil, pipeline.Options{TTL: time.Hour, TopN: 12, MeasureAccuracy: true})

	payload, _, err := p.ProcessData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fc.holdoutCalls)
	assert.Equal(t, map[string]float64{"Travis, Texas": 0.08}, payload.Metrics,
		"only forecasted locations carry an accuracy score")

	mean, ok := payload.MeanSMAPE()
	require.True(t, ok)
	assert.InDelta(t, 0.08, mean, 1e-12)
}

func TestProcessData_CacheHitSkipsPublish(t *testing.T) {
	cached := &domain.Payload{TopLocations: []string{"Travis, Texas"}, GeneratedAt: day(2)}
	src := &stubSource{geo: testGeo}
	pub := &recordingPublisher{}
	p, metrics := newPipeline(src, &stubForecaster{}, hitCache{payload: cached}, pub, pipeline.Options{TTL: time.Hour, TopN: 12})

	payload, _, err := p.ProcessData(context.Background())
	require.NoError(t, err)

	assert.Same(t, cached, payload)
	assert.Equal(t, 0, pub.calls, "cached results are not re-published")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CacheMisses))
}

func TestProcessData_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("nyt unreachable")
	src := &stubSource{records: nil, geo: testGeo, err: boom}
	p, _ := newPipeline(src, &stubForecaster{}, passthroughCache{}, nil, pipeline.Options{TTL: time.Hour, TopN: 12})

	_, _, err := p.ProcessData(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSnapshot_FalseUntilFirstPass(t *testing.T) {
	src := &stubSource{records: testRecords(), geo: testGeo}
	fc := &stubForecaster{results: map[string]forecast.Result{
		"Travis, Texas": {Status: forecast.Forecasted, GrowthRatio: 1.2},
		"Loving, Texas": {Status: forecast.SkippedShortSeries},
	}}
	p, _ := newPipeline(src, fc, passthroughCache{}, nil, pipeline.Options{TTL: time.Hour, TopN: 12})

	_, _, ok := p.Snapshot()
	assert.False(t, ok)

	_, _, err := p.ProcessData(context.Background())
	require.NoError(t, err)

	payload, geo, ok := p.Snapshot()
	require.True(t, ok)
	assert.NotNil(t, payload)
	assert.Equal(t, testGeo, geo)
}
