// Command forecastd runs the outbreak forecasting engine as a service: one
// cache-gated pass at startup, periodic refreshes, and a read-only HTTP API
// for the dashboard. With -once it builds the cache artifact and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/outbreak-forecast-service/internal/adapter/cache"
	httpadapter "github.com/couchcryptid/outbreak-forecast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/outbreak-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-forecast-service/internal/adapter/source"
	"github.com/couchcryptid/outbreak-forecast-service/internal/config"
	"github.com/couchcryptid/outbreak-forecast-service/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast-service/internal/observability"
	"github.com/couchcryptid/outbreak-forecast-service/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "build the forecast cache and exit without serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	src := source.NewClient(cfg.DataDir, cfg.CasesURL, cfg.GeoURL, cfg.FetchTimeout, logger)
	engine := forecast.NewEngine(cfg.Hyperparameters, cfg.Workers, logger)
	store := cache.New(cfg.CachePath, clock, logger)

	// Publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer writer.Close()
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(src, engine, store, publisher, logger, metrics, pipeline.Options{
		TTL:             cfg.CacheTTL,
		TopN:            cfg.TopN,
		MeasureAccuracy: cfg.MeasureAccuracy,
		Clock:           clock,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, _, err := p.ProcessData(ctx); err != nil {
			logger.Error("forecast pass failed", "error", err)
			os.Exit(1)
		}
		logger.Info("forecast cache built")
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- p.Run(ctx, cfg.RefreshInterval)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-pipelineDone:
		if err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
