package eventstore

import "time"

// Record is one journaled event. Payload is the JSON encoding of the
// lifecycle event.
type Record struct {
	ID        int64
	RunID     string
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}
