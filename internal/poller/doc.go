// Package poller samples engine progress for active downloads on a fixed
// cadence and folds the samples into the record store. Completion is decided
// here: a sample that reaches 100 percent moves the record to completed,
// kicks the scheduler for the freed slot, and hands the record to the import
// hook when one is wired.
package poller
