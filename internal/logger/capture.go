package logger

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder is a slog.Handler that keeps every record in memory. Supervisors
// use it to inspect what a component reported; tests use it to count
// diagnostics.
type Recorder struct {
	mu      sync.Mutex
	records []slog.Record
	level   slog.Level
	attrs   []slog.Attr
	parent  *Recorder
}

// NewRecorder returns a recorder keeping records at or above level.
func NewRecorder(level slog.Level) *Recorder {
	return &Recorder{level: level}
}

func (r *Recorder) root() *Recorder {
	if r.parent != nil {
		return r.parent
	}
	return r
}

// Enabled implements slog.Handler.
func (r *Recorder) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= r.root().level
}

// Handle implements slog.Handler.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)
	root := r.root()
	root.mu.Lock()
	root.records = append(root.records, rec)
	root.mu.Unlock()
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	merged = append(merged, r.attrs...)
	merged = append(merged, attrs...)
	return &Recorder{parent: r.root(), attrs: merged}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Logger wraps the recorder in a slog.Logger.
func (r *Recorder) Logger() *slog.Logger { return slog.New(r) }

// Records returns a copy of the kept records.
func (r *Recorder) Records() []slog.Record {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	out := make([]slog.Record, len(root.records))
	copy(out, root.records)
	return out
}

// Count returns how many records were kept at or above level.
func (r *Recorder) Count(level slog.Level) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Level >= level {
			n++
		}
	}
	return n
}

// Attr returns the value of key on rec, searching the record attributes.
func Attr(rec slog.Record, key string) (slog.Value, bool) {
	var (
		v     slog.Value
		found bool
	)
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v = a.Value
			found = true
			return false
		}
		return true
	})
	return v, found
}
