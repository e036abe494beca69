// internal/logging/logging.go
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"marketapp/internal/identity"
)

const timeLayout = "2006/01/02 15:04:05"

// textHandler writes lines like:
// 2025/09/06 21:11:44 level=INFO msg="logged in" user_id=abc role=buyer
// Records are enriched from context with the acting principal.
type textHandler struct {
	out      io.Writer
	mu       *sync.Mutex
	minLevel slog.Leveler
	attrs    []slog.Attr
}

func (h *textHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := slog.LevelInfo
	if h.minLevel != nil {
		min = h.minLevel.Level()
	}
	return l >= min
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '"' || r == '=' || r == '\\' {
			return true
		}
	}
	return false
}

func appendKeyVal(sb *strings.Builder, key string, val any) {
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	s := fmt.Sprint(val)
	if needsQuoting(s) {
		fmt.Fprintf(sb, "%q", s)
	} else {
		sb.WriteString(s)
	}
}

func (h *textHandler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var sb strings.Builder
	sb.Grow(256)
	sb.WriteString(ts.Format(timeLayout))
	sb.WriteString(" level=")
	sb.WriteString(r.Level.String())
	if r.Message != "" {
		appendKeyVal(&sb, "msg", r.Message)
	}

	kv := map[string]any{}
	if p, ok := identity.PrincipalFromContext(ctx); ok {
		kv["user_id"] = p.ID
		kv["role"] = string(p.Role)
	}
	for _, a := range h.attrs {
		kv[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "" {
			kv[a.Key] = a.Value.Any()
		}
		return true
	})

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendKeyVal(&sb, k, kv[k])
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	out = append(out, h.attrs...)
	out = append(out, attrs...)
	return &textHandler{out: h.out, mu: h.mu, minLevel: h.minLevel, attrs: out}
}

func (h *textHandler) WithGroup(string) slog.Handler { return h }

// Setup configures slog's default logger.
// level: "debug", "info", "warn", "error" (case-insensitive).
// json: if true, use the JSON handler; otherwise the text handler above.
func Setup(level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var logger *slog.Logger
	if json {
		replace := func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeLayout))
			}
			return a
		}
		opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: replace}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		logger = slog.New(&textHandler{out: os.Stderr, mu: &sync.Mutex{}, minLevel: lvl})
	}
	slog.SetDefault(logger)
	return logger
}
