// Package scheduler admits queued downloads into active transfer. Admission
// passes run serially: on startup, on kicks from the other lifecycle
// components, and on a safety interval so a missed kick cannot strand queued
// records. Each pass fills free slots FIFO while the storage gate stays
// open, isolating per-record start failures from the rest of the queue.
package scheduler
