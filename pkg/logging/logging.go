// Package logging configures log/slog for the textconf binaries.
//
// Levels from most to least verbose: debug, info, warn, error. Formats: text
// (default) or json. Debug level adds source locations.
//
//	logging.Setup(logging.Options{Level: "debug", Format: "json"})
//	slog.Info("client logged in", "user", "alice")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // "debug", "info", "warn", "error" (default: "info")
	Format string    // "text" or "json" (default: "text")
	Output io.Writer // default: os.Stderr
}

// ParseLevel converts a level name to slog.Level.
// Unrecognized values map to slog.LevelInfo; use Validate to reject them.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Validate returns an error if the level or format is not recognized.
func Validate(opts Options) error {
	switch strings.ToLower(strings.TrimSpace(opts.Level)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("unknown log level %q (valid: %s)", opts.Level, LevelNames())
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "text", "json", "":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}
	return nil
}

// LevelNames returns all valid level names, for --help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// New builds a logger from opts without installing it.
func New(opts Options) (*slog.Logger, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), nil
}

// Setup builds a logger from opts and makes it the slog default.
// Call it early in main, before anything logs.
func Setup(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// FromEnv fills empty Level and Format fields from <prefix>_LOG_LEVEL and
// <prefix>_LOG_FORMAT.
func FromEnv(prefix string, opts Options) Options {
	if opts.Level == "" {
		opts.Level = os.Getenv(prefix + "_LOG_LEVEL")
	}
	if opts.Format == "" {
		opts.Format = os.Getenv(prefix + "_LOG_FORMAT")
	}
	return opts
}
