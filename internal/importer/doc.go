// Package importer moves completed downloads from staging into the content
// catalog. An explicit work queue feeds a bounded worker pool; each import
// classifies the staged payload, picks a destination, verifies free space,
// relocates the files, and asks the catalog for a rescan. Failures retry
// with exponential backoff and exhausted records revert to completed with a
// diagnostic so a manual import can try again later.
package importer
