// Package cache memoizes the forecasting pass on disk behind a freshness
// window. One entry exists per store; it is replaced wholesale on every
// recomputation and never merged or partially updated.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// schemaVersion tags the on-disk envelope. A version mismatch on read is a
// cache miss, never an error — old artifacts are recomputed, not migrated.
const schemaVersion = 1

// lockRetryDelay paces advisory-lock acquisition attempts.
const lockRetryDelay = 250 * time.Millisecond

// envelope is the on-disk format: schema version, creation time, payload.
// CreatedAt inside the envelope (not file mtime) is the freshness clock, so
// copying the artifact around does not change its age.
type envelope struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Store is a freshness-gated disk memoizer for forecast payloads.
type Store struct {
	path   string
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a store writing to path. The clock is injected so tests can
// freeze the freshness window.
func New(path string, clock clockwork.Clock, logger *slog.Logger) *Store {
	return &Store{path: path, clock: clock, logger: logger}
}

// GetOrCompute returns the cached payload when its age is strictly less
// than ttl, otherwise invokes compute and atomically replaces the entry.
// The bool reports whether the result came from cache.
//
// Writers from independent processes are serialized by an advisory file
// lock held across compute+write; a process that loses the race re-checks
// freshness after acquiring the lock and reuses the winner's entry.
func (s *Store) GetOrCompute(ctx context.Context, ttl time.Duration, compute func(context.Context) (*domain.Payload, error)) (*domain.Payload, bool, error) {
	if payload, ok := s.readFresh(ttl); ok {
		return payload, true, nil
	}

	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, false, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return nil, false, errors.New("acquire cache lock: not acquired")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("release cache lock failed", "error", err)
		}
	}()

	// Another process may have recomputed while this one waited.
	if payload, ok := s.readFresh(ttl); ok {
		return payload, true, nil
	}

	payload, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.write(payload); err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

// readFresh loads the entry if present, decodable, schema-current, and
// younger than ttl. Every failure mode is a miss: corruption forces
// recomputation instead of propagating.
func (s *Store) readFresh(ttl time.Duration) (*domain.Payload, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("cache artifact is corrupt, forcing recomputation", "path", s.path, "error", err)
		return nil, false
	}
	if env.Version != schemaVersion {
		s.logger.Warn("cache artifact has stale schema, forcing recomputation",
			"path", s.path, "version", env.Version, "want", schemaVersion)
		return nil, false
	}

	// Half-open interval: an entry aged exactly ttl is already stale.
	age := s.clock.Now().Sub(env.CreatedAt)
	if age >= ttl {
		return nil, false
	}

	var payload domain.Payload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Warn("cache payload is corrupt, forcing recomputation", "path", s.path, "error", err)
		return nil, false
	}
	return &payload, true
}

// write persists the payload via temp file and rename, so a concurrent
// reader never observes a half-written entry.
func (s *Store) write(payload *domain.Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize cache payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		Version:   schemaVersion,
		CreatedAt: s.clock.Now(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("serialize cache envelope: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}
