package kvgo

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/kvgo/core"
)

// Logger wraps slog.Logger with kvgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithKey adds the cache key fields to the logger.
func (l *Logger) WithKey(key core.Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("layer", key.Layer, "head", key.Head, "position", key.Position),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithSession adds a session id field to the logger.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, key core.Key, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed",
			"key", key,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"key", key,
			"dimension", dimension,
		)
	}
}

// LogBatchPut logs a batch put operation.
func (l *Logger) LogBatchPut(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch put completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
	} else {
		l.InfoContext(ctx, "batch put completed",
			"count", count,
		)
	}
}

// LogEvictionPass logs one pressure episode.
func (l *Logger) LogEvictionPass(ctx context.Context, target, freed int64, demoted, evicted int, err error) {
	if err != nil {
		l.WarnContext(ctx, "eviction pass fell short",
			"target_bytes", target,
			"freed_bytes", freed,
			"demoted", demoted,
			"evicted", evicted,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "eviction pass completed",
			"target_bytes", target,
			"freed_bytes", freed,
			"demoted", demoted,
			"evicted", evicted,
		)
	}
}

// LogSweep logs a maintenance sweep.
func (l *Logger) LogSweep(ctx context.Context, faded int) {
	l.DebugContext(ctx, "maintenance sweep completed",
		"faded", faded,
	)
}

// LogSessionReset logs a session boundary.
func (l *Logger) LogSessionReset(ctx context.Context, sessionID string) {
	l.InfoContext(ctx, "session reset",
		"session", sessionID,
	)
}
