// Package eventstore journals generation lifecycle events in SQLite and
// summarizes past runs from them.
package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves journal records. *SQLiteStore implements it
// and satisfies hooks.Journal.
type Store interface {
	// Append adds a record for runID.
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error

	// ByRun returns the records of one run in append order.
	ByRun(ctx context.Context, runID string) ([]Record, error)

	// Range returns the records appended between start and end, inclusive.
	Range(ctx context.Context, start, end time.Time) ([]Record, error)

	Close() error
}
