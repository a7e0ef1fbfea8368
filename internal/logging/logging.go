// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/motto-wall/internal/config"
)

// New creates a logger writing to stderr and installs it as the slog default.
//
// Format "json" produces JSON lines; anything else produces text with source
// locations. Level is one of debug, info, warn, error and defaults to info.
func New(cfg config.LogConfig) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	json := strings.EqualFold(cfg.Format, "json")
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: !json,
	}

	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
