package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
	// now is replaced in tests.
	now func() time.Time
}

// NewSQLiteStore opens or creates the journal at dbPath. Use ":memory:" for
// a journal that lives as long as the store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(err, ErrDatabaseOpenFailed)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(err, ErrInitializeSchemaFailed)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a record. Timestamps are stored with nanosecond precision.
func (s *SQLiteStore) Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if metadata != nil {
		var err error
		if metadataJSON, err = json.Marshal(metadata); err != nil {
			return wrap(fmt.Errorf("marshal metadata: %w", err), ErrEventAppendFailed)
		}
	}
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		runID, eventType, s.now().UnixNano(), payload, metadataJSON,
	)
	if err != nil {
		return wrap(err, ErrEventAppendFailed)
	}
	return nil
}

// ByRun returns the records of runID in append order.
func (s *SQLiteStore) ByRun(ctx context.Context, runID string) ([]Record, error) {
	return s.query(ctx,
		"SELECT id, run_id, event_type, timestamp, payload, metadata FROM events WHERE run_id = ? ORDER BY id",
		runID)
}

// Range returns the records with timestamps in [start, end].
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Record, error) {
	return s.query(ctx,
		"SELECT id, run_id, event_type, timestamp, payload, metadata FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		unixNano(start), unixNano(end))
}

// Runs returns the ids of the most recent runs, newest first. A
// non-positive limit returns all of them.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id FROM events GROUP BY run_id ORDER BY MAX(id) DESC LIMIT ?", limit)
	if err != nil {
		return nil, wrap(err, ErrEventQueryFailed)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(err, ErrEventQueryFailed)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, ErrEventQueryFailed)
	}
	return ids, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(err, ErrEventQueryFailed)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var ts int64
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.RunID, &r.Type, &ts, &r.Payload, &metadataJSON); err != nil {
			return nil, wrap(fmt.Errorf("scan event: %w", err), ErrEventQueryFailed)
		}
		r.Timestamp = time.Unix(0, ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, wrap(fmt.Errorf("unmarshal metadata: %w", err), ErrEventQueryFailed)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, ErrEventQueryFailed)
	}
	return records, nil
}

// unixNano maps the zero time to the start of the range instead of an
// out-of-range value.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
