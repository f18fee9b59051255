// Package log provides structured logging for meterblink.
// It wraps slog with sensible defaults for service use.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "text" or "json".
	Format string
	// File, if set, duplicates log output to the given path in addition
	// to stdout, so the dashboard and journald both see the same lines.
	File string
}

// Init initializes the global logger. Safe to call more than once;
// only the first call takes effect.
func Init(opts Options) {
	once.Do(func() {
		var lvl slog.Level
		switch opts.Level {
		case "debug":
			lvl = slog.LevelDebug
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		default:
			lvl = slog.LevelInfo
		}

		var out io.Writer = os.Stdout
		if opts.File != "" {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				out = io.MultiWriter(os.Stdout, f)
			} else {
				slog.Warn("log file unavailable, logging to stdout only", "path", opts.File, "error", err)
			}
		}

		hopts := &slog.HandlerOptions{Level: lvl}
		if opts.Format == "json" {
			logger = slog.New(slog.NewJSONHandler(out, hopts))
		} else {
			logger = slog.New(slog.NewTextHandler(out, hopts))
		}

		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init(Options{Level: "info"})
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
