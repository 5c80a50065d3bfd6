// Package logging builds the process logger from configuration.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/randalmurphal/code-search/internal/config"
)

// ParseLevel maps a configured level name to a slog level. Unknown names
// select info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to stderr.
func New(cfg config.LoggingConfig) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter builds a text or JSON logger writing to w.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts a logger from context if available, otherwise
// returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
