package api_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"capstan/internal/api"
)

type staticLiveIDs map[int64]struct{}

func (s staticLiveIDs) LiveStagingIDs(context.Context) (map[int64]struct{}, error) {
	return s, nil
}

type failingLiveIDs struct{}

func (failingLiveIDs) LiveStagingIDs(context.Context) (map[int64]struct{}, error) {
	return nil, errors.New("snapshot unreadable")
}

func seedStagingDir(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "payload.bin"), []byte("data"), 0o644); err != nil {
			t.Fatalf("seed payload: %v", err)
		}
	}
	return root
}

func TestCleanStagingDirectoriesOrphaned(t *testing.T) {
	root := seedStagingDir(t, "3", "9", "leftover")

	result, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{
		StagingDir: root,
		Orphaned:   true,
		LiveIDs:    staticLiveIDs{3: {}},
	})
	if err != nil {
		t.Fatalf("CleanStagingDirectories: %v", err)
	}
	if !result.Configured || result.Scope != "orphaned staging" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Removed.Removed) != 2 {
		t.Fatalf("expected 2 removed dirs, got %v", result.Removed.Removed)
	}
	if _, err := os.Stat(filepath.Join(root, "3")); err != nil {
		t.Fatalf("live staging dir must survive: %v", err)
	}
}

func TestCleanStagingDirectoriesOlderThan(t *testing.T) {
	root := seedStagingDir(t, "5", "6")
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "5"), old, old); err != nil {
		t.Fatalf("age staging dir: %v", err)
	}

	result, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{
		StagingDir: root,
		OlderThan:  24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CleanStagingDirectories: %v", err)
	}
	if result.Scope != "stale staging" {
		t.Fatalf("unexpected scope %q", result.Scope)
	}
	if len(result.Removed.Removed) != 1 {
		t.Fatalf("expected only the aged dir removed, got %v", result.Removed.Removed)
	}
	if _, err := os.Stat(filepath.Join(root, "6")); err != nil {
		t.Fatalf("fresh staging dir must survive: %v", err)
	}
}

func TestCleanStagingDirectoriesUnconfigured(t *testing.T) {
	result, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Configured {
		t.Fatal("empty staging dir must report unconfigured")
	}
}

func TestCleanStagingDirectoriesRequiresPolicy(t *testing.T) {
	if _, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{StagingDir: t.TempDir()}); err == nil {
		t.Fatal("expected error without older_than or orphaned")
	}
	if _, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{StagingDir: t.TempDir(), Orphaned: true}); err == nil {
		t.Fatal("expected error without live id provider")
	}
	if _, err := api.CleanStagingDirectories(context.Background(), api.CleanupRequest{StagingDir: t.TempDir(), Orphaned: true, LiveIDs: failingLiveIDs{}}); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}
