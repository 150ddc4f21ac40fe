// Package source fetches the raw inputs of a forecasting pass: the NYT
// county case table and the FIPS boundary GeoJSON.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

const geoFileName = "us-fips.json"

// Client downloads case data and geo metadata over HTTP. The GeoJSON is
// written to the data directory on first fetch and reused indefinitely —
// county boundaries essentially never change. Case data freshness is
// governed by the result cache upstream, so the case table is always
// re-fetched here.
type Client struct {
	http     *resty.Client
	dataDir  string
	casesURL string
	geoURL   string
	logger   *slog.Logger
}

// NewClient builds a source client.
func NewClient(dataDir, casesURL, geoURL string, timeout time.Duration, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &Client{
		http:     httpClient,
		dataDir:  dataDir,
		casesURL: casesURL,
		geoURL:   geoURL,
		logger:   logger,
	}
}

// FetchCaseRecords downloads and parses the latest county case table.
// Failure here is fatal to the pass: there is no local fallback for case
// data, stale results are the cache's job.
func (c *Client) FetchCaseRecords(ctx context.Context) ([]domain.CaseRecord, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.casesURL)
	if err != nil {
		return nil, fmt.Errorf("fetch case data: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch case data: status %d", resp.StatusCode())
	}

	records, skipped, err := parseCaseRecords(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse case data: %w", err)
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed case rows", "count", skipped)
	}
	c.logger.Info("fetched case records", "records", len(records))
	return records, nil
}

// FetchGeoMetadata returns the county boundary GeoJSON, preferring the
// local copy. A missing local copy triggers a download; if that also fails
// the error is fatal, since the map layer cannot render without it.
func (c *Client) FetchGeoMetadata(ctx context.Context) (json.RawMessage, error) {
	path := filepath.Join(c.dataDir, geoFileName)

	if data, err := os.ReadFile(path); err == nil {
		if json.Valid(data) {
			return data, nil
		}
		c.logger.Warn("local geo metadata is not valid JSON, refetching", "path", path)
	}

	resp, err := c.http.R().SetContext(ctx).Get(c.geoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch geo metadata: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch geo metadata: status %d", resp.StatusCode())
	}
	data := resp.Body()
	if !json.Valid(data) {
		return nil, fmt.Errorf("fetch geo metadata: response is not valid JSON")
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		// Keep going: the in-memory copy is good, only reuse is lost.
		c.logger.Warn("failed to persist geo metadata", "path", path, "error", err)
	}
	c.logger.Info("downloaded geo metadata", "bytes", len(data))
	return data, nil
}
