// Package logs provides file tailing and offset helpers shared by the CLI and
// daemon diagnostics.
//
// It streams log files with bounded memory usage, supports negative offsets
// for "tail last N lines" operations, and powers follow-mode updates for
// `capstan logs --follow`. Callers supply context deadlines so background
// polling shuts down cleanly when the CLI exits. The stream client in this
// package prefers the daemon's structured HTTP event feed and lets callers
// fall back to plain file tailing over IPC when the HTTP API is not bound.
//
// Use this package whenever you need consistent log viewing semantics instead
// of re-implementing ad-hoc tail logic.
package logs
