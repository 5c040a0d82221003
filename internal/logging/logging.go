// Package logging provides structured logging using Go's log/slog.
//
// Configuration is controlled via environment variables:
//   - REFSCOPE_LOG_LEVEL: debug, info, warn, error (default: info)
//   - REFSCOPE_LOG_FORMAT: text, json (default: text)
//
// All logging goes to stderr to keep stdout clean for the MCP transport.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration
type Config struct {
	Level     slog.Level
	Format    string    // "text" or "json"
	Output    io.Writer // defaults to os.Stderr
	AddSource bool
}

// DefaultConfig returns the stderr text logger defaults.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// FromEnv reads logging config from REFSCOPE_LOG_LEVEL and
// REFSCOPE_LOG_FORMAT, falling back to defaults for unset or
// unrecognized values.
func FromEnv() Config {
	cfg := DefaultConfig()

	if level := os.Getenv("REFSCOPE_LOG_LEVEL"); level != "" {
		if parsed, err := ParseLevel(level); err == nil {
			cfg.Level = parsed
		}
	}

	if format := os.Getenv("REFSCOPE_LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}

	return cfg
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New creates a configured slog.Logger.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// Default returns a logger configured from the environment.
// This is the recommended way to create a logger in entry points.
func Default() *slog.Logger {
	return New(FromEnv())
}

// Nop returns a logger that discards all output.
// Useful for tests or when logging should be suppressed.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

// nopWriter implements io.Writer and discards all data.
type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
