// Package log builds the structured loggers used across the runtime and
// provides typed attribute helpers for the identifiers that appear in
// nearly every entry (trace IDs, step names, topics).
package log

import (
	"io"
	"log/slog"
	"os"
)

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New constructs a JSON slog.Logger preconfigured at info level
func New(service, version string) *slog.Logger {
	return NewWithLevel(service, version, slog.LevelInfo)
}

// NewWithLevel constructs a JSON slog.Logger at the provided level
func NewWithLevel(service, version string, lvl slog.Level) *slog.Logger {
	return NewWithWriter(service, version, lvl, os.Stdout)
}

// NewWithWriter constructs a JSON slog.Logger writing to the given sink.
// Tests use this to capture output
func NewWithWriter(
	service, version string, lvl slog.Level, w io.Writer,
) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("version", version))
}

// ParseLevel maps a configuration level name to a slog.Level, defaulting
// to info for unrecognized names
func ParseLevel(name string) slog.Level {
	if lvl, ok := levelNames[name]; ok {
		return lvl
	}
	return slog.LevelInfo
}
