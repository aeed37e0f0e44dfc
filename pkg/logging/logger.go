// Package logging wraps slog with the helpers the chat pipeline leans on:
// every record a turn produces carries the session id, and each subsystem
// logs under its own component name.
package logging

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger with chat-specific field helpers.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger at the given level. Unknown levels fall back
// to info.
func New(level string) *Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return &Logger{Logger: logger}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

// WithSession returns a logger that stamps every record with the session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	if l == nil {
		return Default().WithSession(sessionID)
	}
	return &Logger{Logger: l.Logger.With("session_id", sessionID)}
}

// WithComponent returns a logger that names the subsystem writing the
// record, so one process's pipeline, store, and API lines stay separable.
func (l *Logger) WithComponent(name string) *Logger {
	if l == nil {
		return Default().WithComponent(name)
	}
	return &Logger{Logger: l.Logger.With("component", name)}
}
