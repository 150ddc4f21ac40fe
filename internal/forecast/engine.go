// Package forecast fits one time-series model per location and converts the
// predictions into damped growth ratios. Every location is independent: a
// pathological series costs only its own ranking entry, never the batch.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
	"github.com/couchcryptid/outbreak-forecast-service/internal/forecast/arima"
)

// Horizon is the fixed number of future periods every forecast predicts.
const Horizon = 6

// minHoldoutTrain is the smallest training remainder accepted when the last
// Horizon observations are withheld for accuracy measurement.
const minHoldoutTrain = 3

// handicapDivisor scales the case handicap: locations below ~60 cumulative
// cases have their growth signal damped because percentage swings on tiny
// counts are statistically noisy and would otherwise dominate the ranking.
const handicapDivisor = 120.0

// Status classifies a per-location outcome.
type Status int

const (
	// Forecasted means the model fit and produced a growth ratio.
	Forecasted Status = iota
	// SkippedShortSeries means the location had too little history to
	// model. A defined exclusion, not an error.
	SkippedShortSeries
	// SkippedFitFailure means estimation failed numerically. The location
	// is excluded from the ranking; the batch continues.
	SkippedFitFailure
)

// Result is the typed outcome of one location's forecast, so callers can
// distinguish "no signal" from "error" without losing either.
type Result struct {
	Key         string
	Status      Status
	GrowthRatio float64
	Predicted   []float64
	SMAPE       float64 // only meaningful after a holdout forecast
	Err         error   // cause when Status is SkippedFitFailure
}

// Engine forecasts location series under a fixed hyperparameter set.
type Engine struct {
	cfg     arima.Config
	workers int
	logger  *slog.Logger
}

// NewEngine builds an engine. workers <= 0 selects a CPU-bound default.
func NewEngine(hp domain.Hyperparameters, workers int, logger *slog.Logger) *Engine {
	return &Engine{
		cfg: arima.Config{
			StartP: hp.StartP, MaxP: hp.MaxP,
			StartQ: hp.StartQ, MaxQ: hp.MaxQ,
			MaxD:      hp.MaxD,
			MaxIter:   hp.MaxIter,
			Method:    hp.Method,
			Scoring:   hp.Scoring,
			Criterion: hp.Criterion,
		},
		workers: workers,
		logger:  logger,
	}
}

// Forecast models a single location. When holdout is set, the last Horizon
// observations are withheld, the model fits on the remainder, and SMAPE is
// computed between the withheld actuals and the predictions.
func (e *Engine) Forecast(series domain.LocationSeries, holdout bool) Result {
	values := series.Values
	if len(values) < Horizon {
		return Result{Key: series.Key, Status: SkippedShortSeries}
	}

	train := values
	var actual []float64
	if holdout {
		if len(values)-Horizon < minHoldoutTrain {
			return Result{Key: series.Key, Status: SkippedShortSeries}
		}
		train = values[:len(values)-Horizon]
		actual = values[len(values)-Horizon:]
	}

	model, err := arima.Fit(train, e.cfg)
	if err != nil {
		return Result{Key: series.Key, Status: SkippedFitFailure, Err: err}
	}

	predicted := model.Forecast(Horizon)
	for _, v := range predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{
				Key:    series.Key,
				Status: SkippedFitFailure,
				Err:    fmt.Errorf("non-finite prediction from ARIMA(%d,%d,%d)", model.P, model.D, model.Q),
			}
		}
	}

	latest := values[len(values)-1]
	if latest <= 0 {
		return Result{
			Key:    series.Key,
			Status: SkippedFitFailure,
			Err:    errors.New("growth ratio undefined: most recent observation is not positive"),
		}
	}

	handicap := math.Min(1.0, 0.5+latest/handicapDivisor)
	growth := predicted[Horizon-1] / latest * handicap
	if math.IsNaN(growth) || math.IsInf(growth, 0) {
		return Result{
			Key:    series.Key,
			Status: SkippedFitFailure,
			Err:    errors.New("non-finite growth ratio"),
		}
	}

	r := Result{Key: series.Key, Status: Forecasted, GrowthRatio: growth, Predicted: predicted}
	if holdout {
		r.SMAPE = smape(actual, predicted)
	}
	return r
}

// smape is the symmetric mean absolute percentage error over the horizon.
// A period where both actual and predicted are zero contributes zero error.
func smape(actual, predicted []float64) float64 {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		denom := math.Abs(actual[i]) + math.Abs(predicted[i])
		if denom == 0 {
			continue
		}
		sum += math.Abs(actual[i]-predicted[i]) / denom
	}
	return sum / float64(n)
}
