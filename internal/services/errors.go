package services

import (
	"errors"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrEngine        = errors.New("engine error")
	ErrImport        = errors.New("import error")
	ErrPersistence   = errors.New("persistence error")
	ErrTransient     = errors.New("transient failure")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &wrapError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

type wrapError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *wrapError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return e.marker.Error() + ": " + detail + ": " + e.cause.Error()
	}
	return e.marker.Error() + ": " + detail
}

// Unwrap exposes both the marker and the cause so errors.Is matches either.
func (e *wrapError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// ErrorDetails is the flattened view of a classified error consumed by log
// records and control-surface responses.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Hint      string
	Cause     string
}

var kindTable = []struct {
	marker error
	kind   string
	hint   string
}{
	{ErrValidation, "validation", "check the submitted source"},
	{ErrConflict, "conflict", "inspect record status and the storage gate"},
	{ErrNotFound, "not_found", "list downloads to confirm the id"},
	{ErrEngine, "engine", "check the source health and engine connectivity"},
	{ErrImport, "import", "verify catalog destinations and free space"},
	{ErrPersistence, "persistence", "check that the state directory is writable"},
	{ErrConfiguration, "configuration", "review the capstan config file"},
	{ErrTransient, "transient", "the operation is retried automatically"},
}

// Details flattens err for logging and IPC responses. The outermost Wrap
// supplies component and operation; the kind comes from the first matching
// sentinel marker.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: err.Error()}
	for _, entry := range kindTable {
		if errors.Is(err, entry.marker) {
			details.Kind = entry.kind
			details.Hint = entry.hint
			break
		}
	}
	var wrapped *wrapError
	if errors.As(err, &wrapped) {
		details.Component = wrapped.component
		details.Operation = wrapped.operation
		if wrapped.message != "" {
			details.Message = wrapped.message
		}
		if wrapped.cause != nil {
			details.Cause = wrapped.cause.Error()
		}
	}
	return details
}
