// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal record models into transport-friendly
// DTOs that clients can render without coupling to internal types.
//
// # Key Types
//
// Download: transport representation of a download record with transfer
// metrics, staging location, and lifecycle timestamps.
//
// WorkflowStatus: daemon running state, record stats, component health,
// volume levels, and last download.
//
// DaemonStatus: aggregated runtime information including lock and state
// paths.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Converters
//
// FromRecord: records.DownloadRecord -> Download with RFC3339 timestamps.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use snake_case JSON tags matching the IPC wire format. Internal enums
// (records.Status, volumes.Level, history.Outcome) are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds.
package api
