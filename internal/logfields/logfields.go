package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyNode       = "node"
	KeyDest       = "dest"
	KeyPath       = "path"
	KeyTracker    = "tracker"
	KeyItem       = "item"
	KeyProcessor  = "processor"
	KeyPipeline   = "pipeline"
	KeyExtension  = "extension"
	KeySource     = "source"
	KeyBackend    = "backend"
	KeyPhase      = "phase"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeySubject    = "subject"
	KeySchedule   = "schedule_name"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Node(alcn string) slog.Attr       { return slog.String(KeyNode, alcn) }
func Dest(p string) slog.Attr          { return slog.String(KeyDest, p) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Tracker(name string) slog.Attr    { return slog.String(KeyTracker, name) }
func Item(id string) slog.Attr         { return slog.String(KeyItem, id) }
func Processor(name string) slog.Attr  { return slog.String(KeyProcessor, name) }
func Pipeline(names []string) slog.Attr { return slog.Any(KeyPipeline, names) }
func Extension(name string) slog.Attr  { return slog.String(KeyExtension, name) }
func Source(name string) slog.Attr     { return slog.String(KeySource, name) }
func Backend(name string) slog.Attr    { return slog.String(KeyBackend, name) }
func Phase(name string) slog.Attr      { return slog.String(KeyPhase, name) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Subject(s string) slog.Attr       { return slog.String(KeySubject, s) }
func ScheduleName(n string) slog.Attr  { return slog.String(KeySchedule, n) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
