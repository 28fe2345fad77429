package slogutil

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// silent sits above every standard level.
const silent = slog.Level(100)

// NewLogger returns a logger backed by Handler at the given minimum level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDiscardLogger returns a logger that drops every record.
func NewDiscardLogger() *slog.Logger {
	return NewLogger(io.Discard, silent)
}

var namedLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LevelFromString maps a general.log_level value to a slog.Level.
// Unknown names fall back to info.
func LevelFromString(s string) slog.Level {
	if l, ok := namedLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// LevelFromFlags applies --verbose and --quiet on top of the configured
// level. --quiet silences everything, even with --verbose.
func LevelFromFlags(configured string, verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return silent
	case verbose:
		return slog.LevelDebug
	}
	return LevelFromString(configured)
}

// TeeHandler fans each record out to several handlers. The daemon uses it
// to log to stderr and its rotating file at once.
type TeeHandler struct {
	sinks []slog.Handler
}

func NewTeeHandler(sinks ...slog.Handler) *TeeHandler {
	return &TeeHandler{sinks: sinks}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range t.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of r to every sink that accepts its level and
// reports the first sink error.
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, s := range t.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (t *TeeHandler) each(f func(slog.Handler) slog.Handler) *TeeHandler {
	out := make([]slog.Handler, 0, len(t.sinks))
	for _, s := range t.sinks {
		out = append(out, f(s))
	}
	return &TeeHandler{sinks: out}
}
