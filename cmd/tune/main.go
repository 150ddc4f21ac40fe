// Command tune runs one holdout forecasting pass for an external
// hyperparameter-search loop and prints the mean SMAPE scalar to stdout.
//
// The overrides file is a flat JSON object matching the hyperparameter
// fields; absent keys keep their defaults:
//
//	go run ./cmd/tune -hp trial.json
//	{"max_p": 9, "method": "nm", "maxiter": 120}
//
// A failed run exits non-zero without printing a score. The penalty policy
// for failed trials belongs to the search loop, not to this engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/outbreak-forecast-service/internal/adapter/source"
	"github.com/couchcryptid/outbreak-forecast-service/internal/config"
	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
	"github.com/couchcryptid/outbreak-forecast-service/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tune:", err)
		os.Exit(1)
	}
}

func run() error {
	hpPath := flag.String("hp", "", "path to a JSON file with hyperparameter overrides")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)

	hp := cfg.Hyperparameters
	if *hpPath != "" {
		data, err := os.ReadFile(*hpPath)
		if err != nil {
			return err
		}
		var overrides domain.HyperparameterOverrides
		if err := json.Unmarshal(data, &overrides); err != nil {
			return fmt.Errorf("parse overrides: %w", err)
		}
		hp = hp.Merge(overrides)
	}
	if err := hp.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := source.NewClient(cfg.DataDir, cfg.CasesURL, cfg.GeoURL, cfg.FetchTimeout, logger)
	records, err := src.FetchCaseRecords(ctx)
	if err != nil {
		return err
	}
	series := domain.BuildSeries(records)

	engine := forecast.NewEngine(hp, cfg.Workers, logger)
	results, err := engine.ForecastAll(ctx, series, true)
	if err != nil {
		return err
	}

	var sum float64
	var n int
	for _, r := range results {
		if r.Status == forecast.Forecasted {
			sum += r.SMAPE
			n++
		}
	}
	if n == 0 {
		return errors.New("no location produced a holdout forecast")
	}

	fmt.Printf("%.6f\n", sum/float64(n))
	return nil
}
