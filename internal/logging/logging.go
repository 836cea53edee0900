// Package logging wires [log/slog] into lexrag. A single logger is built at
// startup with [New]; request- and command-scoped children travel through
// context via [WithLogger] and [FromContext].
//
// Controlled by two environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type loggerKey struct{}

// New builds the process logger from the environment. JSON output is the
// default so service logs stay machine-parseable; LOG_FORMAT=text is for
// local runs.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: level()}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// WithLogger returns a child context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger placed by [WithLogger]. Contexts without
// one yield [slog.Default], so call sites never nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// level reads LOG_LEVEL, treating anything unrecognised as info.
func level() slog.Level {
	var l slog.Level
	raw := os.Getenv("LOG_LEVEL")
	if raw == "warning" {
		raw = "warn"
	}
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return l
}
