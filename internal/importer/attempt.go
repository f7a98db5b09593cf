package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"capstan/internal/catalog"
	"capstan/internal/fileutil"
	"capstan/internal/logging"
	"capstan/internal/records"
	"capstan/internal/services"
	"capstan/internal/textutil"
)

// attempt performs one import pass and returns the final destination path.
// Errors other than errNoDestination are retryable.
func (i *Importer) attempt(ctx context.Context, record *records.DownloadRecord, logger *slog.Logger) (string, error) {
	class, err := catalog.ClassifyDir(record.StagingPath)
	if err != nil {
		return "", services.Wrap(services.ErrImport, "importer", "classify staging", "scan staged files", err)
	}

	dest, ok := i.selectDestination(record, class, logger)
	if !ok {
		return "", errNoDestination
	}
	destDir := dest.PrimaryPath()
	if destDir == "" {
		return "", errNoDestination
	}

	stagedBytes, err := fileutil.DirSize(record.StagingPath)
	if err != nil {
		return "", services.Wrap(services.ErrImport, "importer", "size staging", "measure staged payload", err)
	}
	if i.storage != nil {
		free, err := i.storage.FreeBytes(destDir)
		if err != nil {
			return "", services.Wrap(services.ErrImport, "importer", "check destination space", destDir, err)
		}
		if free < uint64(stagedBytes) {
			return "", services.Wrap(services.ErrImport, "importer", "check destination space",
				fmt.Sprintf("destination %s has %d bytes free, payload needs %d", dest.ID, free, stagedBytes), nil)
		}
	}

	name := textutil.DestinationName(record.DisplayName, fmt.Sprintf("download-%d", record.ID))
	target, err := fileutil.UniquePath(filepath.Join(destDir, name))
	if err != nil {
		return "", services.Wrap(services.ErrImport, "importer", "allocate destination path", name, err)
	}

	// A move pulls the payload out from under any live engine session, so
	// release the session first. A copy leaves staging intact and the
	// session can keep seeding.
	if i.removeStaging && i.stopper != nil {
		if err := i.stopper.Stop(ctx, record.ID, false); err != nil {
			return "", services.Wrap(services.ErrImport, "importer", "release session", "stop transfer session before move", err)
		}
	}

	if err := i.relocate(record.StagingPath, target); err != nil {
		return "", services.Wrap(services.ErrImport, "importer", "relocate payload", target, err)
	}

	logger.Info("payload placed in catalog",
		logging.String(logging.FieldEventType, "import_payload_placed"),
		logging.String("destination_id", dest.ID),
		logging.String("target", target),
		logging.String("class", string(class)),
		logging.Int64("bytes", stagedBytes),
		logging.Bool("staging_removed", i.removeStaging))

	if err := i.catalog.TriggerRescan(ctx, dest); err != nil {
		logger.Warn("catalog rescan failed",
			logging.String(logging.FieldEventType, "import_rescan_failed"),
			logging.Error(err))
	}
	return target, nil
}

// selectDestination resolves where the payload lands: the record's explicit
// destination, then the first destination matching the detected class, then
// the configured default, then the first enumerated destination.
func (i *Importer) selectDestination(record *records.DownloadRecord, class catalog.Class, logger *slog.Logger) (catalog.Destination, bool) {
	if record.DestinationID != "" {
		if dest, ok := i.catalog.ResolveDestination(record.DestinationID); ok {
			return dest, true
		}
		logger.Warn("requested destination unknown; falling back to class match",
			logging.String(logging.FieldEventType, "import_destination_unknown"),
			logging.String("destination_id", record.DestinationID))
	}

	destinations := i.catalog.EnumerateDestinations()
	if dest, ok := catalog.SelectByClass(destinations, class); ok {
		return dest, true
	}
	if i.cfg != nil && i.cfg.Import.DefaultDestination != "" {
		if dest, ok := i.catalog.ResolveDestination(i.cfg.Import.DefaultDestination); ok {
			return dest, true
		}
	}
	if len(destinations) > 0 {
		return destinations[0], true
	}
	return catalog.Destination{}, false
}

// relocate carries the staged payload to the target. RemoveStaging selects
// a move (atomic rename, with a verified copy across filesystems) over a
// verified copy that keeps the staging payload in place for seeding.
func (i *Importer) relocate(src, target string) error {
	if i.removeStaging {
		return fileutil.MoveDir(src, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := fileutil.CopyDirVerified(src, target); err != nil {
		_ = os.RemoveAll(target)
		return err
	}
	return nil
}
