// Package logging builds the structured slog stack shared by every Capstan
// component.
//
// The console and JSON handlers, level plumbing, and output routing all live
// here, together with context helpers that stamp log lines with download
// record IDs, lifecycle stages, and request IDs. A no-op logger is available
// for tests and for wiring paths that must not fail.
//
// New components should construct their loggers through this package so their
// output keeps the same shape and routing as everything else.
package logging
