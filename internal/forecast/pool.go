package forecast

import (
	"context"
	"runtime"
	"sync"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// ForecastAll fans the per-location forecasts out to a bounded worker pool
// and collects outcomes indexed by input position, so the result order is
// the discovery order of the series regardless of completion order. The
// downstream ranking sorts by growth ratio; keeping the reduction
// deterministic here is what keeps tie-breaks deterministic there.
func (e *Engine) ForecastAll(ctx context.Context, series []domain.LocationSeries, holdout bool) ([]Result, error) {
	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(series) {
		workers = len(series)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(series))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = e.Forecast(series[i], holdout)
			}
		}()
	}

dispatch:
	for i := range series {
		select {
		case <-ctx.Done():
			break dispatch
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
