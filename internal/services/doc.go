// Package services defines shared utilities consumed by the lifecycle
// components and the control surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, conflict, not found, engine, import, persistence) so
//     callers can route on errors.Is, and Details which flattens a wrapped
//     error for log records and IPC responses.
//
// Use these helpers when wiring new component logic so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
