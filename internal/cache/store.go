package cache

import (
	"context"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// Store loads and saves snapshots through a storage backend.
type Store struct {
	backend  storage.Backend
	logger   *slog.Logger
	recorder metrics.Recorder
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) StoreOption {
	return func(s *Store) { s.recorder = metrics.OrNoop(r) }
}

// NewStore creates a store over backend.
func NewStore(backend storage.Backend, opts ...StoreOption) *Store {
	s := &Store{backend: backend, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying storage backend.
func (s *Store) Backend() storage.Backend { return s.backend }

// Load returns the persisted snapshot, or an empty one when nothing was
// saved yet. An unreadable or incompatible blob is logged and treated as
// empty so the run rebuilds everything.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	data, err := s.backend.Read(ctx)
	if err != nil {
		s.recorder.ObserveCacheOperation(metrics.CacheLoad, time.Since(start), false)
		return nil, ferrors.CacheError("load cache snapshot").WithCause(err).
			WithContext("backend", s.backend.Name()).
			Build()
	}
	if len(data) == 0 {
		s.recorder.ObserveCacheOperation(metrics.CacheLoad, time.Since(start), true)
		s.logger.Debug("No cache snapshot found", logfields.Backend(s.backend.Name()))
		return NewSnapshot(), nil
	}

	snap, err := Decode(data)
	if err != nil {
		s.recorder.ObserveCacheOperation(metrics.CacheLoad, time.Since(start), false)
		s.logger.Warn("Discarding unreadable cache snapshot",
			logfields.Backend(s.backend.Name()),
			logfields.Error(err))
		return NewSnapshot(), nil
	}
	s.recorder.ObserveCacheOperation(metrics.CacheLoad, time.Since(start), true)
	st := snap.Stats()
	s.logger.Debug("Loaded cache snapshot",
		logfields.Backend(s.backend.Name()),
		slog.Int("nodes", st.Nodes),
		slog.Int("items", st.Items))
	return snap, nil
}

// Save merges current over previous and persists the result atomically.
// It returns the merged snapshot.
func (s *Store) Save(ctx context.Context, previous, current *Snapshot) (*Snapshot, error) {
	start := time.Now()
	merged := Merge(previous, current)
	data, err := Encode(merged)
	if err == nil {
		err = s.backend.Write(ctx, data)
	}
	s.recorder.ObserveCacheOperation(metrics.CacheSave, time.Since(start), err == nil)
	if err != nil {
		return nil, ferrors.CacheError("save cache snapshot").WithCause(err).
			WithContext("backend", s.backend.Name()).
			Build()
	}
	s.logger.Debug("Saved cache snapshot",
		logfields.Backend(s.backend.Name()),
		logfields.Count(len(data)))
	return merged, nil
}
