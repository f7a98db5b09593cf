package logging

// Structured logging keys shared by every component. Console rendering, the
// stream hub, and the HTTP log API all key off these names, so new code
// should reuse them instead of inventing variants.
const (
	// FieldComponent names the emitting component (scheduler, poller, ...).
	FieldComponent = "component"
	// FieldRecordID carries the download record identifier.
	FieldRecordID = "record_id"
	// FieldStage names the lifecycle stage a line refers to.
	FieldStage = "stage"
	// FieldRequestID carries a request correlation identifier.
	FieldRequestID = "request_id"
	// FieldSessionID carries the diagnostic session identifier.
	FieldSessionID = "session_id"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"

	// FieldEventType categorizes a log line for downstream filtering
	// (e.g. "record_created", "transfer_started", "import_complete").
	FieldEventType = "event_type"

	// FieldErrorKind carries the services classification of a failure.
	FieldErrorKind = "error_kind"
	// FieldErrorOperation names the operation that failed.
	FieldErrorOperation = "error_operation"
	// FieldErrorHint suggests the next operator action.
	FieldErrorHint = "error_hint"
	// FieldErrorCause carries the underlying cause message.
	FieldErrorCause = "error_cause"

	// FieldDecisionType tags admission and destination decisions.
	FieldDecisionType = "decision_type"

	// FieldProgressStage names the lifecycle phase a progress line refers to.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries transfer completion as 0-100.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries a human progress summary.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA carries the estimated time remaining.
	FieldProgressETA = "progress_eta"
)
