// Package logging provides structured logging for lenedastat.
//
// Loggers returned by Component are usually created in package-level vars,
// before main has read the config. They write through a shared root handler
// that Init swaps, so level and format changes reach every logger.
//
// Usage:
//
//	var log = logging.Component("orchestrator")
//
//	logging.Init(slog.LevelDebug, true)
//	log.Info("cycle finished", "records", 24)
//
//	ctx = logging.ContextWithCycleID(ctx, id)
//	logging.WithContext(ctx).Warn("chunk failed", "error", err)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level slog.LevelVar
	root  atomic.Pointer[slog.Handler]

	// Logger is the process-wide logger all component loggers derive from.
	Logger = slog.New(&handler{})
)

func init() {
	Setup(os.Stdout, slog.LevelInfo, false)
}

// Init sets the level and format of all loggers. Output goes to stdout.
func Init(lvl slog.Level, jsonFormat bool) {
	Setup(os.Stdout, lvl, jsonFormat)
}

// Setup is Init with an explicit destination.
func Setup(w io.Writer, lvl slog.Level, jsonFormat bool) {
	level.Set(lvl)
	opts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: lvl == slog.LevelDebug,
	}

	var h slog.Handler
	if jsonFormat {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	root.Store(&h)
	slog.SetDefault(Logger)
}

// SetLevel changes the level without touching the output format.
func SetLevel(lvl slog.Level) {
	level.Set(lvl)
}

// ParseLevel converts a config level name into a slog.Level.
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
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

// WithContext returns a logger carrying the cycle and series IDs of ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := Logger
	if id := CycleIDFromContext(ctx); id != "" {
		logger = logger.With("cycle_id", id)
	}
	if id, ok := ctx.Value(seriesIDKey).(string); ok && id != "" {
		logger = logger.With("series_id", id)
	}
	return logger
}

type contextKey int

const (
	cycleIDKey contextKey = iota
	seriesIDKey
)

// ContextWithCycleID attaches an update cycle ID to ctx.
func ContextWithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// ContextWithSeriesID attaches a series ID to ctx.
func ContextWithSeriesID(ctx context.Context, seriesID string) context.Context {
	return context.WithValue(ctx, seriesIDKey, seriesID)
}

// CycleIDFromContext returns the cycle ID stored in ctx, if any.
func CycleIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey).(string)
	return id
}

// =============================================================================
// Root handler
// =============================================================================

// step is one With or WithGroup call, replayed onto the current root.
type step struct {
	group string
	attrs []slog.Attr
}

type handler struct {
	steps []step
}

func (h *handler) current() slog.Handler {
	inner := *root.Load()
	for _, s := range h.steps {
		if s.group != "" {
			inner = inner.WithGroup(s.group)
		} else {
			inner = inner.WithAttrs(s.attrs)
		}
	}
	return inner
}

func (h *handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(step{attrs: attrs})
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(step{group: name})
}

func (h *handler) with(s step) *handler {
	steps := make([]step, len(h.steps), len(h.steps)+1)
	copy(steps, h.steps)
	return &handler{steps: append(steps, s)}
}
