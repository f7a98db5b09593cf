package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler forwards each record to every wrapped handler that accepts its
// level. Records are cloned before the second and later deliveries so one
// handler's AddAttrs cannot leak into another's view.
type teeHandler struct {
	targets []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	targets := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			targets = append(targets, h)
		}
	}
	switch len(targets) {
	case 0:
		return discardHandler{}
	case 1:
		return targets[0]
	default:
		return &teeHandler{targets: targets}
	}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.targets {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	delivered := 0
	for _, h := range t.targets {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if delivered > 0 {
			rec = record.Clone()
		}
		delivered++
		if err := h.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.apply(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.apply(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *teeHandler) apply(wrap func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(t.targets))
	for i, h := range t.targets {
		next[i] = wrap(h)
	}
	return &teeHandler{targets: next}
}

// TeeHandler combines handlers into one that delivers to all of them.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	return newTeeHandler(handlers...)
}

// TeeLogger duplicates base's output into the extra handlers. Used by
// diagnostic mode to mirror the daemon log into a debug JSON file.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(newTeeHandler(handlers...))
	}
	return slog.New(newTeeHandler(append([]slog.Handler{base.Handler()}, handlers...)...))
}
