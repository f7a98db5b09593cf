package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"capstan/internal/api"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
	"capstan/internal/services"
	"capstan/internal/volumes"
)

// CreateDownload validates and enqueues a new download, then nudges the
// scheduler so an idle daemon picks it up without waiting for the next tick.
func (d *Daemon) CreateDownload(ctx context.Context, source, owner, destinationID string) (*records.DownloadRecord, error) {
	record, err := d.store.Create(ctx, source, owner, destinationID)
	if err != nil {
		return nil, err
	}
	if err := d.notifier.Publish(ctx, notifications.EventDownloadAdded, notifications.Payload{
		"name": record.DisplayName,
	}); err != nil {
		d.logger.Debug("added notification failed", logging.Error(err))
	}
	d.manager.Scheduler().Kick()
	return record, nil
}

// GetDownload returns a copy of one record.
func (d *Daemon) GetDownload(id int64) (*records.DownloadRecord, error) {
	return d.store.Get(id)
}

// ListDownloads returns records in submission order, optionally filtered by
// status.
func (d *Daemon) ListDownloads(statuses ...records.Status) []*records.DownloadRecord {
	return d.store.List(statuses...)
}

// DownloadStats aggregates record counts per status.
func (d *Daemon) DownloadStats() records.Stats {
	return d.store.Stats()
}

// PauseDownload suspends an active transfer. Anything not active is a
// conflict, including records that already finished.
func (d *Daemon) PauseDownload(ctx context.Context, id int64) (*records.DownloadRecord, error) {
	record, err := d.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Status != records.StatusActive {
		return nil, services.Wrap(services.ErrConflict, "daemon", "pause",
			fmt.Sprintf("download %d is %s, only active downloads pause", id, record.Status), nil)
	}
	if err := d.engine.Pause(ctx, id); err != nil {
		return nil, services.Wrap(services.ErrEngine, "daemon", "pause",
			fmt.Sprintf("download %d", id), err)
	}
	updated, err := d.store.UpdateStatus(id, records.StatusPaused, "")
	if err != nil {
		// The record moved on while the engine paused (a final progress
		// sample may have completed it). Undo the engine side.
		_ = d.engine.Resume(ctx, id)
		return nil, err
	}
	d.logger.Info("download paused",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "download_paused"))
	return updated, nil
}

// ResumeDownload readmits a paused transfer through the same capacity and
// storage gate checks the scheduler applies to queued records.
func (d *Daemon) ResumeDownload(ctx context.Context, id int64) (*records.DownloadRecord, error) {
	record, err := d.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Status != records.StatusPaused {
		return nil, services.Wrap(services.ErrConflict, "daemon", "resume",
			fmt.Sprintf("download %d is %s, only paused downloads resume", id, record.Status), nil)
	}
	updated, err := d.store.Activate(id, records.StartInfo{})
	if err != nil {
		return nil, err
	}
	if err := d.engine.Resume(ctx, id); err != nil {
		if _, revertErr := d.store.UpdateStatus(id, records.StatusPaused, "resume failed: "+err.Error()); revertErr != nil {
			d.logger.Warn("revert to paused failed", logging.Int64(logging.FieldRecordID, id), logging.Error(revertErr))
		}
		return nil, services.Wrap(services.ErrEngine, "daemon", "resume",
			fmt.Sprintf("download %d", id), err)
	}
	d.logger.Info("download resumed",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "download_resumed"))
	return updated, nil
}

// CancelDownload removes a record, stops its session, and archives the
// outcome. Unknown ids report NotFound and are safe to repeat.
func (d *Daemon) CancelDownload(ctx context.Context, id int64, deleteFiles bool) error {
	record, getErr := d.store.Get(id)
	if err := d.store.Cancel(ctx, id, deleteFiles); err != nil {
		return err
	}
	if getErr == nil && d.history != nil {
		entry := history.Entry{
			RecordID:     record.ID,
			Source:       record.Source,
			DisplayName:  record.DisplayName,
			Owner:        record.Owner,
			Outcome:      history.OutcomeCancelled,
			TotalBytes:   record.TotalBytes,
			ErrorMessage: record.ErrorMessage,
			CreatedAt:    record.CreatedAt,
		}
		if err := d.history.Record(ctx, entry); err != nil {
			d.logger.Warn("history write failed",
				logging.Int64(logging.FieldRecordID, id),
				logging.String(logging.FieldEventType, "history_write_failed"),
				logging.Error(err))
		}
	}
	return nil
}

// ImportDownload queues a manual catalog import for a completed download.
func (d *Daemon) ImportDownload(ctx context.Context, id int64) error {
	record, err := d.store.Get(id)
	if err != nil {
		return err
	}
	if record.Status != records.StatusCompleted {
		return services.Wrap(services.ErrConflict, "daemon", "import",
			fmt.Sprintf("download %d is %s, only completed downloads import", id, record.Status), nil)
	}
	d.manager.Importer().Enqueue(id)
	d.logger.Info("manual import queued",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "import_requested"))
	return nil
}

// VolumesStatus samples the monitored mounts on demand.
func (d *Daemon) VolumesStatus(ctx context.Context) []volumes.VolumeStatus {
	if d.monitor == nil {
		return nil
	}
	return d.monitor.CheckNow(ctx)
}

// TriggerCleanup sweeps the staging root. A positive olderThan removes
// directories untouched for that long; otherwise orphaned selects
// directories no live record references.
func (d *Daemon) TriggerCleanup(ctx context.Context, olderThan time.Duration, orphaned bool) (api.CleanupResult, error) {
	return api.CleanStagingDirectories(ctx, api.CleanupRequest{
		StagingDir: d.cfg.Paths.StagingDir,
		OlderThan:  olderThan,
		Orphaned:   orphaned,
		LiveIDs:    d,
		Logger:     d.logger,
	})
}

// LiveStagingIDs reports every record id in the collection. Any record,
// terminal or not, keeps its staging directory until it is cancelled.
func (d *Daemon) LiveStagingIDs(context.Context) (map[int64]struct{}, error) {
	list := d.store.List()
	ids := make(map[int64]struct{}, len(list))
	for _, record := range list {
		ids[record.ID] = struct{}{}
	}
	return ids, nil
}

// HistoryList returns archived outcomes, newest first.
func (d *Daemon) HistoryList(ctx context.Context, limit int, outcomes ...history.Outcome) ([]history.Entry, error) {
	if d.history == nil {
		return nil, errors.New("history store unavailable")
	}
	return d.history.List(ctx, limit, outcomes...)
}

// HistoryHealth returns archive database diagnostics.
func (d *Daemon) HistoryHealth(ctx context.Context) (history.DatabaseHealth, error) {
	if d.history == nil {
		return history.DatabaseHealth{}, errors.New("history store unavailable")
	}
	return d.history.CheckHealth(ctx)
}

// SnapshotHealth returns record snapshot diagnostics.
func (d *Daemon) SnapshotHealth() records.SnapshotHealth {
	return d.store.Health()
}

// TestNotification sends a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
