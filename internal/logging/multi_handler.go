package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler duplicates log records across several handlers, used to
// write human-readable output and the journald stream side by side.
type fanoutHandler struct {
	targets []slog.Handler
}

func newFanoutHandler(targets ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{targets: targets}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.targets {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.targets {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	targets := make([]slog.Handler, len(f.targets))
	for i, h := range f.targets {
		targets[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{targets: targets}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	targets := make([]slog.Handler, len(f.targets))
	for i, h := range f.targets {
		targets[i] = h.WithGroup(name)
	}
	return &fanoutHandler{targets: targets}
}
