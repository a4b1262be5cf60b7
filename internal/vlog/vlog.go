// Package vlog provides one named structured logger per subsystem.
// Logging is silenced by default and toggled centrally from the
// settings document's general.enableLogging key.
package vlog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	handler  atomic.Pointer[slog.Handler]
	loggers  = map[string]*slog.Logger{}
	loggerMu sync.Mutex
)

func init() {
	var h slog.Handler = slog.NewTextHandler(io.Discard, nil)
	handler.Store(&h)
}

// Configure sets the active handler for all loggers obtained via For.
// Call once at startup after settings are loaded. Passing enabled=false
// discards all output; enabled=true writes leveled text to w.
func Configure(w io.Writer, enabled bool, level slog.Level) {
	var h slog.Handler
	if !enabled {
		h = slog.NewTextHandler(io.Discard, nil)
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	handler.Store(&h)
}

// For returns the named logger for a subsystem ("plugin", "scan",
// "debugger", "monitor", "dispatch", ...). The returned logger always
// reflects the most recent Configure call, since it dispatches through
// the shared atomic handler pointer rather than capturing one.
func For(subsystem string) *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if l, ok := loggers[subsystem]; ok {
		return l
	}
	l := slog.New(&redirectHandler{subsystem: subsystem})
	loggers[subsystem] = l
	return l
}

// redirectHandler defers to whatever handler Configure last installed.
type redirectHandler struct {
	subsystem string
}

func (r *redirectHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := *handler.Load()
	return h.Enabled(ctx, level)
}

func (r *redirectHandler) Handle(ctx context.Context, rec slog.Record) error {
	h := *handler.Load()
	rec.AddAttrs(slog.String("subsystem", r.subsystem))
	return h.Handle(ctx, rec)
}

func (r *redirectHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h := (*handler.Load()).WithAttrs(attrs)
	return h
}

func (r *redirectHandler) WithGroup(name string) slog.Handler {
	h := (*handler.Load()).WithGroup(name)
	return h
}
