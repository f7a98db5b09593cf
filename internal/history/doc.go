// Package history archives terminal download outcomes in SQLite.
//
// The live record collection only holds downloads still in play; once a
// download is imported, failed, or cancelled its story moves here. Rows
// are append-only: the archive answers "what happened last week" without
// bloating the snapshot the daemon rewrites on every mutation.
package history
