// Package logging wraps log/slog the way common/logging
// package does: one small Logger type adding context-aware helpers and a
// level parser, never a bespoke logging abstraction on top of slog.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger. The correlator has no HTTP middleware of its
// own, so unlike that version this does not extract a request ID
// from context — it exists purely so every package logs through the same
// small surface and the handler (JSON vs text) is chosen in one place.
type Logger struct {
	*slog.Logger
}

// New creates a Logger at the given level. format is "json" or "text";
// anything else defaults to json, matching the convention for
// local ("text") versus production ("json") runs.
func New(level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelError,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns a Logger backed by slog.Default(), for tests and tools
// that don't need to configure a level or format.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// With returns a Logger with the given attributes attached to every
// subsequent record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithGroup returns a Logger that nests subsequent attributes under name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name)}
}

// InfoContext, WarnContext, ErrorContext, DebugContext pass ctx through to
// slog so a handler that does care about context (tracing, cancellation)
// still sees it, even though this Logger doesn't enrich from it itself.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, args...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, args...)
}

// ParseLevel converts a string log level to slog.Level, defaulting to Info
// for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
