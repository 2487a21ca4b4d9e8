// Package testutils provides helpers shared by the tests of the different packages.
package testutils

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Record is a log record kept by a LogRecorder.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

type recorderState struct {
	mu      sync.Mutex
	records []Record
}

// LogRecorder is a slog.Handler keeping every record at or above its level.
// Groups are flattened.
type LogRecorder struct {
	state *recorderState
	attrs []slog.Attr
	level slog.Level
}

// NewLogRecorder returns a LogRecorder keeping records at or above level.
func NewLogRecorder(level slog.Level) *LogRecorder {
	return &LogRecorder{state: &recorderState{}, level: level}
}

// Logger returns a logger writing to the recorder.
func (h *LogRecorder) Logger() *slog.Logger {
	return slog.New(h)
}

// Enabled implements Handler.Enabled.
func (h *LogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements Handler.Handle.
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Message: r.Message, Attrs: make(map[string]string)}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.records = append(h.state.records, rec)
	return nil
}

// WithAttrs implements Handler.WithAttrs.
func (h *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{
		state: h.state,
		attrs: append(slices.Clip(h.attrs), attrs...),
		level: h.level,
	}
}

// WithGroup implements Handler.WithGroup.
func (h *LogRecorder) WithGroup(string) slog.Handler {
	return h
}

// Records returns the records kept so far.
func (h *LogRecorder) Records() []Record {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return slices.Clone(h.state.records)
}

// Levels returns the number of records kept per level.
func (h *LogRecorder) Levels() map[slog.Level]int {
	levels := make(map[slog.Level]int)
	for _, r := range h.Records() {
		levels[r.Level]++
	}
	return levels
}

// AssertLevels asserts that the number of records per level matches want.
func (h *LogRecorder) AssertLevels(t *testing.T, want map[slog.Level]int) bool {
	t.Helper()

	if want == nil {
		want = map[slog.Level]int{}
	}
	return assert.Equal(t, want, h.Levels(), "Unexpected number of log records per level")
}

// OutputLogs logs the kept records to the test output.
func (h *LogRecorder) OutputLogs(t *testing.T) {
	t.Helper()

	for _, r := range h.Records() {
		t.Logf("%v %s %v", r.Level, r.Message, r.Attrs)
	}
}
