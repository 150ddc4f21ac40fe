// Package config loads service settings by layering defaults, an optional
// YAML file, and FORECAST_-prefixed environment variables.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// Config holds all service settings.
type Config struct {
	HTTPAddr        string        `koanf:"http_addr"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Data source.
	DataDir      string        `koanf:"data_dir"`
	CasesURL     string        `koanf:"cases_url"`
	GeoURL       string        `koanf:"geo_url"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// Result cache.
	CachePath       string        `koanf:"cache_path"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// Forecasting.
	TopN            int  `koanf:"top_n"`
	Workers         int  `koanf:"workers"` // <=0 means one per CPU
	MeasureAccuracy bool `koanf:"measure_accuracy"`

	Hyperparameters domain.Hyperparameters `koanf:"hyperparameters"`

	// Optional Kafka publishing of the top-risk summary.
	KafkaEnabled bool     `koanf:"kafka_enabled"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// defaults returns the baseline configuration.
func defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,

		DataDir:      "data",
		CasesURL:     "https://raw.githubusercontent.com/nytimes/covid-19-data/master/us-counties.csv",
		GeoURL:       "https://raw.githubusercontent.com/plotly/datasets/master/geojson-counties-fips.json",
		FetchTimeout: 60 * time.Second,

		CachePath:       "data/forecast-cache.json",
		CacheTTL:        22 * time.Hour,
		RefreshInterval: time.Hour,

		TopN: 12,

		Hyperparameters: domain.DefaultHyperparameters(),

		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "outbreak-risk-summary",
	}
}

// Load builds a Config by layering (low -> high precedence):
//  1. defaults
//  2. YAML file named by FORECAST_CONFIG, if set
//  3. environment variables with the FORECAST_ prefix
//     (FORECAST_CACHE_TTL=22h, FORECAST_HYPERPARAMETERS_MAX_P=8, ...)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("FORECAST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Map FORECAST_CACHE_TTL -> cache_ttl and
	// FORECAST_HYPERPARAMETERS_MAX_P -> hyperparameters.max_p.
	envProvider := env.Provider("FORECAST_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "FORECAST_"))
		if rest, ok := strings.CutPrefix(s, "hyperparameters_"); ok {
			return "hyperparameters." + rest
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http_addr must not be empty")
	}
	if c.CasesURL == "" || c.GeoURL == "" {
		return errors.New("cases_url and geo_url must not be empty")
	}
	if c.CachePath == "" {
		return errors.New("cache_path must not be empty")
	}
	if c.CacheTTL <= 0 {
		return errors.New("cache_ttl must be positive")
	}
	if c.TopN < 1 {
		return errors.New("top_n must be at least 1")
	}
	if c.KafkaEnabled && (len(c.KafkaBrokers) == 0 || c.KafkaTopic == "") {
		return errors.New("kafka_enabled requires kafka_brokers and kafka_topic")
	}
	return c.Hyperparameters.Validate()
}
