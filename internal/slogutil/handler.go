// Package slogutil provides the slog handler and helpers used for agentreflect logging.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode"
)

// Handler writes one line per record:
//
//	2026-10-19T06:00:00Z [info] Searching category | category=testing_gaps queries=4
//
// Attributes bound through WithAttrs are rendered once and reused.
type Handler struct {
	mu     *sync.Mutex
	out    io.Writer
	min    slog.Leveler
	prefix string // dotted group path, "a.b." or empty
	bound  []byte // pre-rendered " key=value" pairs
}

// NewHandler creates a Handler writing to w. Only opts.Level is honored.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	h := &Handler{mu: new(sync.Mutex), out: w, min: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.min = opts.Level
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := make([]byte, 0, 160+len(h.bound))
	line = ts.UTC().AppendFormat(line, time.RFC3339)
	line = append(line, " ["...)
	line = append(line, levelLabel(r.Level)...)
	line = append(line, "] "...)
	line = append(line, r.Message...)

	pairs := append([]byte(nil), h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		pairs = appendAttr(pairs, h.prefix, a)
		return true
	})
	if len(pairs) > 0 {
		line = append(line, " |"...)
		line = append(line, pairs...)
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = append([]byte(nil), h.bound...)
	for _, a := range attrs {
		next.bound = appendAttr(next.bound, h.prefix, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendAttr renders a as " key=value". Group values are flattened into
// dotted keys; empty attrs and empty groups are dropped.
func appendAttr(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, m := range members {
			dst = appendAttr(dst, prefix, m)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')
	return appendValue(dst, a.Value)
}

func appendValue(dst []byte, v slog.Value) []byte {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if needsQuoting(s) {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

// needsQuoting reports whether s would break the space-separated pair layout.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, c := range s {
		if c == ' ' || c == '"' || c == '=' || !unicode.IsPrint(c) {
			return true
		}
	}
	return false
}

var levelLabels = [...]string{"debug", "info", "warn", "error"}

func levelLabel(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return levelLabels[0]
	case l < slog.LevelWarn:
		return levelLabels[1]
	case l < slog.LevelError:
		return levelLabels[2]
	}
	return levelLabels[3]
}
