// Package log configures structured logging for all playbook-engine services.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide slog handler. Level names are matched
// case-insensitively; anything unrecognized falls back to info so a typo in
// LOG_LEVEL never silences a service.
func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns the default logger scoped to one module. Every package
// in this repository keys its log lines on the "module" attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
