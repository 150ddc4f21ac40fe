package forecast

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

func TestForecastAll_ResultsFollowInputOrder(t *testing.T) {
	e := testEngine(4)

	var series []domain.LocationSeries
	for i := 0; i < 24; i++ {
		base := float64(10 + i)
		series = append(series, domain.LocationSeries{
			Key:    fmt.Sprintf("County %02d, Somewhere", i),
			Values: []float64{base, base + 2, base + 4, base + 6, base + 8, base + 10},
		})
	}

	first, err := e.ForecastAll(context.Background(), series, false)
	require.NoError(t, err)
	second, err := e.ForecastAll(context.Background(), series, false)
	require.NoError(t, err)

	require.Len(t, first, len(series))
	for i := range series {
		assert.Equal(t, series[i].Key, first[i].Key)
		assert.Equal(t, first[i].GrowthRatio, second[i].GrowthRatio, "run-to-run determinism for %s", series[i].Key)
	}
}

func TestForecastAll_CancelledContext(t *testing.T) {
	e := testEngine(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	series := []domain.LocationSeries{
		{Key: "Travis, Texas", Values: []float64{10, 12, 14, 16, 18, 20}},
	}

	_, err := e.ForecastAll(ctx, series, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForecastAll_EmptyInput(t *testing.T) {
	e := testEngine(2)

	results, err := e.ForecastAll(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}
