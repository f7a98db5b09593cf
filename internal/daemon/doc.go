// Package daemon coordinates the long-running Capstan process and system
// integration points.
//
// It wires configuration, the record store, the transfer engine, and the
// workflow manager into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon exposes the download control
// surface served over IPC and HTTP: submission, pause/resume, cancel,
// manual import, volume status, staging cleanup, history queries, and
// diagnostics.
//
// Keep orchestration logic here: individual lifecycle components live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
