package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is a captured log record: level, message and attributes by key.
type LogEntry map[string]any

type entryLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// TestSlogHandler is a memory-backed slog.Handler. Loggers derived with
// With share the parent's entries and add their attributes to each record.
type TestSlogHandler struct {
	log   *entryLog
	attrs []slog.Attr
}

// NewTestSlogHandler creates an empty handler.
func NewTestSlogHandler() *TestSlogHandler {
	return &TestSlogHandler{log: &entryLog{}}
}

func (h *TestSlogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *TestSlogHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		"level":   r.Level.String(),
		"message": r.Message,
	}
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	h.log.mu.Lock()
	h.log.entries = append(h.log.entries, entry)
	h.log.mu.Unlock()
	return nil
}

func (h *TestSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TestSlogHandler{log: h.log, attrs: merged}
}

// WithGroup ignores groups; attributes stay flat.
func (h *TestSlogHandler) WithGroup(string) slog.Handler {
	return h
}

// Entries returns a copy of the captured entries.
func (h *TestSlogHandler) Entries() []LogEntry {
	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	return append([]LogEntry(nil), h.log.entries...)
}

// Clear drops every captured entry.
func (h *TestSlogHandler) Clear() {
	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	h.log.entries = nil
}
