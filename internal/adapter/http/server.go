// Package http serves the computed forecast tuple to the presentation
// layer, plus health, readiness, and metrics endpoints. The dashboard is a
// pure consumer: no forecasting logic lives behind these routes.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// ResultProvider exposes the most recent forecast results.
type ResultProvider interface {
	// Snapshot returns the current payload and geo metadata; ok is false
	// until the first pass completes.
	Snapshot() (payload *domain.Payload, geo json.RawMessage, ok bool)
}

// Server exposes the read-only API and operational endpoints.
type Server struct {
	httpServer *http.Server
	provider   ResultProvider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, readiness, metrics, and
// result routes.
func NewServer(addr string, provider ResultProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		provider: provider,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/outbreaks", s.handleOutbreaks)
	mux.HandleFunc("GET /api/v1/geo", s.handleGeo)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if _, _, ok := s.provider.Snapshot(); !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "no forecast pass has completed yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleOutbreaks(w http.ResponseWriter, _ *http.Request) {
	payload, _, ok := s.provider.Snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "forecast not available yet"})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGeo(w http.ResponseWriter, _ *http.Request) {
	_, geo, ok := s.provider.Snapshot()
	if !ok || len(geo) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "geo metadata not available yet"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(geo) //nolint:errcheck // best-effort response body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
