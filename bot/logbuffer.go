package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultLogCapacity is how many recent log lines the buffer retains.
const DefaultLogCapacity = 100

// LogBuffer keeps a bounded list of recent log lines, newest first. It
// backs the /logs endpoint and the !logs chat command.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	now      func() time.Time
}

// NewLogBuffer creates a buffer holding up to capacity lines. A
// non-positive capacity falls back to DefaultLogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{capacity: capacity, now: time.Now}
}

// Append inserts a timestamped line at the head, dropping the oldest line
// when the buffer is full.
func (b *LogBuffer) Append(line string) {
	stamped := fmt.Sprintf("[%s] %s", b.now().UTC().Format("2006-01-02T15:04:05.000Z"), line)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append([]string{stamped}, b.lines...)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[:b.capacity]
	}
}

// Recent returns up to n lines, newest first.
func (b *LogBuffer) Recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[:n])
	return out
}

// Len returns the number of buffered lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// TeeHandler is a slog.Handler that mirrors every record into a LogBuffer
// before passing it to the wrapped handler.
type TeeHandler struct {
	inner slog.Handler
	buf   *LogBuffer
}

// NewTeeHandler wraps inner so records also land in buf.
func NewTeeHandler(inner slog.Handler, buf *LogBuffer) *TeeHandler {
	return &TeeHandler{inner: inner, buf: buf}
}

// Enabled implements slog.Handler.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(r.Level.String())
	line.WriteString(" ")
	line.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&line, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	h.buf.Append(line.String())
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{inner: h.inner.WithAttrs(attrs), buf: h.buf}
}

// WithGroup implements slog.Handler.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{inner: h.inner.WithGroup(name), buf: h.buf}
}
