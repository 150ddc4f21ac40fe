package http_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/outbreak-forecast-service/internal/adapter/http"
	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

type stubProvider struct {
	payload *domain.Payload
	geo     json.RawMessage
}

func (p *stubProvider) Snapshot() (*domain.Payload, json.RawMessage, bool) {
	return p.payload, p.geo, p.payload != nil
}

func newTestServer(provider *stubProvider) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", provider, logger)
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&stubProvider{})

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	provider := &stubProvider{}
	srv := newTestServer(provider)

	rec := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready before the first pass")

	provider.payload = &domain.Payload{GeneratedAt: time.Now()}
	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOutbreaks(t *testing.T) {
	provider := &stubProvider{}
	srv := newTestServer(provider)

	rec := get(t, srv, "/api/v1/outbreaks")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	provider.payload = &domain.Payload{
		Ranked: []domain.RankedLocation{
			{Location: "Travis, Texas", GrowthRatio: 1.07, Bucket: 2, Label: "Low-Medium"},
		},
		TopLocations: []string{"Travis, Texas"},
		TotalCases:   20,
	}
	rec = get(t, srv, "/api/v1/outbreaks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Ranked, 1)
	assert.Equal(t, "Travis, Texas", got.Ranked[0].Location)
	assert.Equal(t, []string{"Travis, Texas"}, got.TopLocations)
	assert.Equal(t, 20, got.TotalCases)
}

func TestGeo(t *testing.T) {
	geo := json.RawMessage(`{"type":"FeatureCollection","features":[]}`)
	provider := &stubProvider{payload: &domain.Payload{}, geo: geo}
	srv := newTestServer(provider)

	rec := get(t, srv, "/api/v1/geo")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(geo), rec.Body.String())
}

func TestGeo_UnavailableWithoutMetadata(t *testing.T) {
	srv := newTestServer(&stubProvider{payload: &domain.Payload{}})

	rec := get(t, srv, "/api/v1/geo")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointRegistered(t *testing.T) {
	srv := newTestServer(&stubProvider{})

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
