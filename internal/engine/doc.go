// Package engine drives transfer sessions for download records. The
// lifecycle components consume the Engine contract and never reach into the
// transport; the production implementation is an adapter over
// github.com/anacrolix/torrent with per-record file storage rooted at each
// record's staging path. Guarded wraps any Engine with defensive per-call
// timeouts so a wedged engine cannot stall the daemon's loops.
package engine
