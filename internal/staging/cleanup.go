package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"capstan/internal/logging"
)

// Result summarizes one cleanup pass over the staging root.
type Result struct {
	Removed    []string
	BytesFreed int64
	Errors     []DirError
}

// DirError pairs a directory path with the error that kept it in place.
type DirError struct {
	Path  string
	Error error
}

// DirInfo contains metadata about a staging subdirectory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanOrphaned removes staging subdirectories whose name is not a live
// record ID. Cleanup is best effort: per-directory failures are collected
// and logged, never surfaced as a pass failure.
func CleanOrphaned(ctx context.Context, root string, validIDs map[int64]struct{}, logger *slog.Logger) Result {
	return sweep(ctx, root, "orphaned", logger, func(_ string, entry os.DirEntry, r *Result) bool {
		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			return true
		}
		_, live := validIDs[id]
		return !live
	})
}

// CleanOlderThan removes staging subdirectories last modified before the
// cutoff, including directories a live record still references. Callers
// own the cutoff choice.
func CleanOlderThan(ctx context.Context, root string, cutoff time.Time, logger *slog.Logger) Result {
	return sweep(ctx, root, "stale", logger, func(path string, entry os.DirEntry, r *Result) bool {
		info, err := entry.Info()
		if err != nil {
			r.Errors = append(r.Errors, DirError{Path: path, Error: err})
			return false
		}
		return info.ModTime().Before(cutoff)
	})
}

// sweep walks the staging root and removes each subdirectory the condemn
// predicate selects.
func sweep(ctx context.Context, root, reason string, logger *slog.Logger, condemn func(string, os.DirEntry, *Result) bool) Result {
	var result Result
	root = strings.TrimSpace(root)

	entries, err := readStagingRoot(root)
	if err != nil {
		result.Errors = append(result.Errors, DirError{Path: root, Error: err})
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if condemn(path, entry, &result) {
			removeDir(ctx, &result, path, reason, logger)
		}
	}
	return result
}

// readStagingRoot lists the staging root, treating a blank or missing path
// as empty.
func readStagingRoot(root string) ([]os.DirEntry, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}

func removeDir(ctx context.Context, result *Result, dirPath, reason string, logger *slog.Logger) {
	size, _ := dirSize(dirPath)
	if err := os.RemoveAll(dirPath); err != nil {
		result.Errors = append(result.Errors, DirError{Path: dirPath, Error: err})
		if logger != nil {
			logger.WarnContext(ctx, "failed to remove staging directory",
				logging.String("path", dirPath),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
		return
	}
	result.Removed = append(result.Removed, dirPath)
	result.BytesFreed += size
	if logger != nil {
		logger.InfoContext(ctx, "removed staging directory",
			logging.String("path", dirPath),
			logging.String("reason", reason),
			logging.Int64("size_bytes", size),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}

// ListDirectories returns every staging subdirectory with its metadata.
func ListDirectories(root string) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	entries, err := readStagingRoot(root)
	if err != nil {
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// dirSize totals the regular files under path, best effort.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
