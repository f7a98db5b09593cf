// Package records owns the canonical download collection and its durable
// snapshot.
//
// The Store keeps every DownloadRecord in memory behind one process-wide
// mutex and mirrors each mutation to an ordered JSON snapshot. Writes are
// atomic: the collection is encoded to a temp file, the previous snapshot is
// rotated to a one-generation backup, and the temp file is renamed over the
// live path, so the live file is always a complete previous or a complete
// new state. Loading falls back to the backup when the live file is
// unreadable and demotes interrupted records (active becomes queued,
// importing becomes completed) because no engine session survives a restart.
//
// Snapshot write failures are logged and swallowed; the in-memory collection
// stays authoritative until the next successful write. Treat this package as
// the single source of truth for lifecycle transitions; admission and import
// policy live in the scheduler and importer packages.
package records
