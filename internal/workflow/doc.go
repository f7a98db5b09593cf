// Package workflow supervises the daemon's background components.
//
// The Manager owns one goroutine per component: the storage monitor, the
// admission scheduler, the progress poller, and the import coordinator. It
// wires their hand-off hooks (completion kicks the scheduler and feeds the
// import queue, a reopened storage gate resumes admissions and requeues
// blocked imports, start failures land in the history archive), tracks the
// last error and last touched record for diagnostics, and emits queue-level
// notifications when processing starts or drains.
//
// Components keep their own logic; this package is the authoritative home
// for how they are connected.
package workflow
