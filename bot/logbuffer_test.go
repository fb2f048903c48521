package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogBufferNewestFirst(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.Append("first")
	buf.Append("second")
	buf.Append("third")

	lines := buf.Recent(2)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "third")
	require.Contains(t, lines[1], "second")
}

func TestLogBufferCapacity(t *testing.T) {
	buf := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(fmt.Sprintf("line %d", i))
	}

	require.Equal(t, 3, buf.Len())
	lines := buf.Recent(10)
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "line 4")
	require.Contains(t, lines[2], "line 2")
}

func TestLogBufferTimestampFormat(t *testing.T) {
	buf := NewLogBuffer(10)
	buf.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)
	}
	buf.Append("hello")

	lines := buf.Recent(1)
	require.Equal(t, "[2025-06-01T12:30:45.123Z] hello", lines[0])
}

func TestLogBufferDefaultCapacity(t *testing.T) {
	buf := NewLogBuffer(0)
	for i := 0; i < DefaultLogCapacity+20; i++ {
		buf.Append("x")
	}
	require.Equal(t, DefaultLogCapacity, buf.Len())
}

func TestTeeHandler(t *testing.T) {
	buf := NewLogBuffer(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewTeeHandler(inner, buf))

	logger.Info("device registry refreshed", "devices", 12)
	logger.Warn("upstream slow")

	require.Equal(t, 2, buf.Len())
	lines := buf.Recent(2)
	require.Contains(t, lines[0], "WARN upstream slow")
	require.Contains(t, lines[1], "INFO device registry refreshed")
	require.Contains(t, lines[1], "devices=12")
}

func TestTeeHandlerRespectsLevel(t *testing.T) {
	buf := NewLogBuffer(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	handler := NewTeeHandler(inner, buf)

	require.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
}
