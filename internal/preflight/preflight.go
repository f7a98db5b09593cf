package preflight

import (
	"context"

	"capstan/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Network checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	// Staging and log directories are always needed: downloads land in the
	// first, the snapshot and history live in the second. The library is
	// optional until imports are configured.
	dirs := []struct {
		label    string
		path     string
		optional bool
	}{
		{label: "Staging directory", path: cfg.Paths.StagingDir},
		{label: "Library directory", path: cfg.Paths.LibraryDir, optional: true},
		{label: "Log directory", path: cfg.Paths.LogDir},
	}

	var results []Result
	for _, d := range dirs {
		if d.optional && d.path == "" {
			continue
		}
		results = append(results, CheckDirectoryAccess(d.label, d.path))
	}

	if cfg.Catalog.RescanEnabled {
		results = append(results, CheckRescanEndpoint(ctx, cfg.Catalog.RescanURL))
	}
	return results
}
