package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"capstan/internal/staging"
)

// LiveIDProvider surfaces record IDs whose staging directories must survive
// an orphan sweep.
type LiveIDProvider interface {
	LiveStagingIDs(ctx context.Context) (map[int64]struct{}, error)
}

type CleanupRequest struct {
	StagingDir string
	// OlderThan removes directories untouched for at least this long,
	// regardless of record state. Zero disables the age sweep.
	OlderThan time.Duration
	// Orphaned removes directories no live record references.
	Orphaned bool
	LiveIDs  LiveIDProvider
	Logger   *slog.Logger
}

type CleanupResult struct {
	Configured bool
	Scope      string
	Removed    staging.Result
}

// CleanStagingDirectories applies the cleanup policy shared by the daemon
// facade and CLI commands.
func CleanStagingDirectories(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	stagingDir := strings.TrimSpace(req.StagingDir)
	if stagingDir == "" {
		return CleanupResult{Configured: false}, nil
	}

	if req.OlderThan > 0 {
		cutoff := time.Now().Add(-req.OlderThan)
		return CleanupResult{
			Configured: true,
			Scope:      "stale staging",
			Removed:    staging.CleanOlderThan(ctx, stagingDir, cutoff, req.Logger),
		}, nil
	}

	if !req.Orphaned {
		return CleanupResult{}, fmt.Errorf("cleanup requires older_than or orphaned")
	}
	if req.LiveIDs == nil {
		return CleanupResult{}, fmt.Errorf("live id provider is required for orphan cleanup")
	}
	live, err := req.LiveIDs.LiveStagingIDs(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	return CleanupResult{
		Configured: true,
		Scope:      "orphaned staging",
		Removed:    staging.CleanOrphaned(ctx, stagingDir, live, req.Logger),
	}, nil
}
