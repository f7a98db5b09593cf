package logging

import (
	"context"
	"log/slog"
	"strings"

	"capstan/internal/config"
)

// sessionHandler stamps a diagnostic session identifier onto every record
// before delegating to the wrapped handler.
type sessionHandler struct {
	next      slog.Handler
	sessionID string
}

func newSessionHandler(next slog.Handler, sessionID string) slog.Handler {
	if next == nil {
		return discardHandler{}
	}
	return &sessionHandler{next: next, sessionID: sessionID}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	return h.next.Handle(ctx, record)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{next: h.next.WithAttrs(attrs), sessionID: h.sessionID}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	return &sessionHandler{next: h.next.WithGroup(name), sessionID: h.sessionID}
}

// levelFloorHandler raises the minimum level for one logger without touching
// the shared handler chain behind it. The wrapped handler must already be
// configured at the most verbose level any component needs.
type levelFloorHandler struct {
	next  slog.Handler
	floor slog.Level
}

func newLevelFloorHandler(next slog.Handler, floor slog.Level) slog.Handler {
	if next == nil {
		return discardHandler{}
	}
	return &levelFloorHandler{next: next, floor: floor}
}

func (h *levelFloorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *levelFloorHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelFloorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelFloorHandler{next: h.next.WithAttrs(attrs), floor: h.floor}
}

func (h *levelFloorHandler) WithGroup(name string) slog.Handler {
	return &levelFloorHandler{next: h.next.WithGroup(name), floor: h.floor}
}

// CloneWithLevel lets WithLevelOverride re-floor an already wrapped handler
// instead of stacking a second wrapper.
func (h *levelFloorHandler) CloneWithLevel(floor slog.Level) slog.Handler {
	return &levelFloorHandler{next: h.next, floor: floor}
}

// WithLevelOverride returns a logger that enforces the given minimum level
// while keeping the existing attributes and handler wiring.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return slog.New(newLevelFloorHandler(nil, level))
	}
	if cloner, ok := logger.Handler().(interface{ CloneWithLevel(slog.Level) slog.Handler }); ok {
		return slog.New(cloner.CloneWithLevel(level))
	}
	return slog.New(newLevelFloorHandler(logger.Handler(), level))
}

// ComponentLevel looks up the configured level override for a component,
// case-insensitively. The second return is false when no override applies.
func ComponentLevel(overrides map[string]string, component string) (slog.Level, bool) {
	if len(overrides) == 0 {
		return 0, false
	}
	component = strings.ToLower(strings.TrimSpace(component))
	if component == "" {
		return 0, false
	}
	for name, level := range overrides {
		if strings.ToLower(strings.TrimSpace(name)) == component {
			return parseLevel(level), true
		}
	}
	return 0, false
}

// ComponentLogger stamps the component field and applies any per-component
// level override from the logging configuration. Constructors pass
// cfg.Logging.ComponentOverrides straight through; a nil map is fine.
func ComponentLogger(logger *slog.Logger, component string, overrides map[string]string) *slog.Logger {
	out := NewComponentLogger(logger, component)
	if level, ok := ComponentLevel(overrides, component); ok {
		out = WithLevelOverride(out, level)
	}
	return out
}

// ComponentOverrides extracts the override map from a possibly-nil config.
func ComponentOverrides(cfg *config.Config) map[string]string {
	if cfg == nil {
		return nil
	}
	return cfg.Logging.ComponentOverrides
}
