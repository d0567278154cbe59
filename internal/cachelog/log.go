// Package cachelog provides the cache's structured logging handler: the
// same tab-separated line format as bt-go/internal/app/log.go's btHandler,
// generalized to key on a component name (store, refresher, ingest, ...)
// instead of a single backup-run operation ID, since this core has many
// short-lived calls rather than one long-running operation per process.
package cachelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// handler formats records as:
//
//	<timestamp>\t<level>\t<component>\t<message>\t<key=value ...>
type handler struct {
	w         io.Writer
	component string
	attrs     []slog.Attr
}

// New creates a slog.Logger that writes component-tagged, tab-separated
// lines to w.
func New(w io.Writer, component string) *slog.Logger {
	return slog.New(&handler{w: w, component: component})
}

func (h *handler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.component, r.Message); err != nil {
		return err
	}
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		w:         h.w,
		component: h.component,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *handler) WithGroup(string) slog.Handler { return h }
