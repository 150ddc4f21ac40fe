package arima

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLag1ACF(t *testing.T) {
	// Linear ramp of six points has a lag-1 autocorrelation of exactly 0.5.
	assert.InDelta(t, 0.5, lag1ACF([]float64{10, 12, 14, 16, 18, 20}), 1e-12)

	// A constant series has no defined autocorrelation and reports 0.
	assert.Equal(t, 0.0, lag1ACF([]float64{7, 7, 7, 7}))
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []float64{2, 2, 2}, difference([]float64{1, 3, 5, 7}))
	assert.Nil(t, difference([]float64{1}))
}

func TestUndifference_InvertsSingleDifference(t *testing.T) {
	// Forecasted first differences of +2 from a last level of 20.
	got := undifference([]float64{2, 2, 2}, []float64{20})
	assert.Equal(t, []float64{22, 24, 26}, got)
}

func TestUndifference_InvertsDoubleDifference(t *testing.T) {
	// x = [1, 4, 9, 16] (squares): diff1 = [3, 5, 7], diff2 = [2, 2].
	// Forecasting diff2 = 2 forever must reproduce the square numbers.
	got := undifference([]float64{2, 2, 2}, []float64{16, 7})
	assert.Equal(t, []float64{25, 36, 49}, got)
}

func TestChooseD(t *testing.T) {
	// A trending ramp needs one difference; its differences are constant.
	assert.Equal(t, 1, chooseD([]float64{10, 12, 14, 16, 18, 20}, 2))
	// A constant series needs none.
	assert.Equal(t, 0, chooseD([]float64{5, 5, 5, 5, 5, 5}, 2))
	// maxD is a hard cap.
	assert.Equal(t, 0, chooseD([]float64{10, 12, 14, 16, 18, 20}, 0))
}

func TestFit_LinearTrendForecastsExactly(t *testing.T) {
	series := []float64{10, 12, 14, 16, 18, 20}

	model, err := Fit(series, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, model.D)

	got := model.Forecast(6)
	want := []float64{22, 24, 26, 28, 30, 32}
	require.Len(t, got, 6)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "step %d", i)
	}
}

func TestFit_LongRampForecastsContinuation(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = float64(i + 1)
	}

	model, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	got := model.Forecast(3)
	assert.InDelta(t, 21, got[0], 1e-6)
	assert.InDelta(t, 22, got[1], 1e-6)
	assert.InDelta(t, 23, got[2], 1e-6)
}

func TestFit_ConstantSeries(t *testing.T) {
	model, err := Fit([]float64{7, 7, 7, 7, 7, 7, 7}, DefaultConfig())
	require.NoError(t, err)

	for _, v := range model.Forecast(4) {
		assert.InDelta(t, 7, v, 1e-9)
	}
}

func TestFit_DecliningSeriesForecastsDecay(t *testing.T) {
	// Roughly halving every period; the forecast must keep declining, not
	// extrapolate the (large, shrinking) deltas into growth.
	series := []float64{100, 50, 25, 12, 6, 3}

	model, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	got := model.Forecast(6)
	require.Len(t, got, 6)
	for _, v := range got {
		require.False(t, math.IsNaN(v))
	}
	assert.Less(t, got[5], got[0], "forecast should decline")
	assert.Less(t, got[5], series[len(series)-1], "forecast end should sit below the last observation")
}

func TestFit_DoublingSeriesForecastsGrowth(t *testing.T) {
	series := []float64{2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}

	model, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	got := model.Forecast(3)
	assert.Greater(t, got[2], series[len(series)-1], "forecast should continue growing")
}

func TestFit_TooShort(t *testing.T) {
	_, err := Fit([]float64{1, 2}, DefaultConfig())
	assert.Error(t, err)
}

func TestFit_NonFiniteObservation(t *testing.T) {
	_, err := Fit([]float64{1, 2, math.NaN(), 4, 5, 6}, DefaultConfig())
	assert.Error(t, err)

	_, err = Fit([]float64{1, 2, math.Inf(1), 4, 5, 6}, DefaultConfig())
	assert.Error(t, err)
}

func TestFit_HonorsScoringAndCriterion(t *testing.T) {
	series := []float64{100, 50, 25, 12, 6, 3}

	for _, cfg := range []Config{
		{StartP: 1, MaxP: 2, StartQ: 0, MaxQ: 1, MaxD: 1, MaxIter: 30, Method: "nm", Scoring: "mae", Criterion: "bic"},
		{StartP: 1, MaxP: 2, StartQ: 0, MaxQ: 1, MaxD: 1, MaxIter: 30, Method: "bfgs", Scoring: "mse", Criterion: "aicc"},
	} {
		model, err := Fit(series, cfg)
		require.NoError(t, err)
		got := model.Forecast(6)
		assert.Less(t, got[5], got[0])
	}
}
