package services

import "context"

type contextKey string

const (
	recordIDKey  contextKey = "record_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithRecordID annotates context with the download record identifier.
func WithRecordID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordIDFromContext extracts the download record identifier if present.
func RecordIDFromContext(ctx context.Context) (int64, bool) {
	switch v := ctx.Value(recordIDKey).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// WithStage annotates context with the lifecycle stage name (admission,
// transfer, import). A blank stage leaves the context untouched.
func WithStage(ctx context.Context, stage string) context.Context {
	return withNonEmpty(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withNonEmpty(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func withNonEmpty(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	s, ok := ctx.Value(key).(string)
	return s, ok && s != ""
}
