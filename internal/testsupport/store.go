package testsupport

import (
	"context"
	"testing"

	"capstan/internal/config"
	"capstan/internal/records"
)

// MustOpenStore opens a records.Store for tests with no engine and an open
// gate, and flushes it during cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Flush()
	})
	return store
}

// NewDownload submits a source to the store for tests.
func NewDownload(t testing.TB, store *records.Store, source string) *records.DownloadRecord {
	t.Helper()

	record, err := store.Create(context.Background(), source, "tester", "")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return record
}
