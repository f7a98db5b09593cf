package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr and Value re-export the slog types so callers build structured fields
// without importing log/slog themselves.
type (
	Attr  = slog.Attr
	Value = slog.Value
)

// Typed field constructors. Thin slog wrappers, kept so every package builds
// attributes the same way.
func Any(key string, value any) Attr                { return slog.Any(key, value) }
func Bool(key string, value bool) Attr              { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Float64(key string, value float64) Attr        { return slog.Float64(key, value) }
func Int(key string, value int) Attr                { return slog.Int(key, value) }
func Int64(key string, value int64) Attr            { return slog.Int64(key, value) }
func Uint64(key string, value uint64) Attr          { return slog.Uint64(key, value) }
func String(key string, value string) Attr          { return slog.String(key, value) }

// Alert marks a line for operator attention under the shared alert key.
func Alert(value string) Attr { return slog.String(FieldAlert, value) }

// Error wraps an error under the conventional "error" key. A nil error still
// produces a field so call sites never branch.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Group nests attrs under key.
func Group(key string, attrs ...Attr) Attr {
	return slog.Group(key, Args(attrs...)...)
}

// Args converts typed attrs into the variadic any slice the slog logger
// methods take.
func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// DecisionAttrs builds the field triple every admission and destination
// decision logs: what was decided, which way, and why.
func DecisionAttrs(decisionType, result, reason string) []Attr {
	return []Attr{
		String(FieldDecisionType, decisionType),
		String("decision_result", result),
		String("decision_reason", reason),
	}
}

// HasAttrKey reports whether attrs already carries key.
func HasAttrKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// WarnWithContext logs a warning that always carries event_type, error_hint,
// and impact fields, filling defaults for any the caller omitted. Warnings
// follow the cause + impact + next step convention.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = ensureField(attrs, FieldEventType, eventType)
	attrs = ensureField(attrs, FieldErrorHint, "check logs for details")
	attrs = ensureField(attrs, FieldImpact, "operation completed with warnings")
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint fields.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = ensureField(attrs, FieldEventType, eventType)
	attrs = ensureField(attrs, FieldErrorHint, "check logs for details")
	logger.Error(msg, Args(attrs...)...)
}

func ensureField(attrs []Attr, key, fallback string) []Attr {
	if HasAttrKey(attrs, key) {
		return attrs
	}
	return append(attrs, String(key, fallback))
}

// NewNop returns a logger that discards everything. Components accept it in
// place of nil so they never check their logger.
func NewNop() *slog.Logger {
	return slog.New(discardHandler{})
}

// NewComponentLogger stamps a component field on every line the returned
// logger emits. A nil base falls back to the nop logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
