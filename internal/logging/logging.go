// Package logging builds the process logger: a text or JSON slog handler,
// filtered by level and wrapped in a RedactingHandler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	// Secrets are redacted literally wherever they appear.
	Secrets []string
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a redacting logger writing to w, plus its Redactor so callers
// can register secrets discovered later (e.g. a token read by a module).
func New(w io.Writer, opts Options) (*slog.Logger, *Redactor, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	hopts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		inner = slog.NewTextHandler(w, hopts)
	case "json":
		inner = slog.NewJSONHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	redactor := NewRedactor(opts.Secrets...)
	return slog.New(NewRedactingHandler(inner, redactor)), redactor, nil
}
