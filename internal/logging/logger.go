// Package logging provides slog construction helpers for the warren client.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured text logger writing to w. When debug is true
// the logger uses DEBUG level and includes source locations; otherwise it
// uses INFO level.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
}

// Default returns the logger used when a configuration supplies none:
// text output on stderr, with debug level controlled by the WARREN_DEBUG
// environment variable.
func Default() *slog.Logger {
	debug := false
	if v := os.Getenv("WARREN_DEBUG"); v == "1" || v == "true" {
		debug = true
	}
	return New(os.Stderr, debug)
}

// NewNopLogger returns a no-op logger for testing.
// All log messages are discarded.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1, // Higher than any log level, effectively disabling all logs
	}))
}
