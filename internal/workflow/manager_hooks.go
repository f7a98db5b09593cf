package workflow

import (
	"context"
	"errors"
	"fmt"

	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
)

// onAdmitted runs after the scheduler promotes a record to active.
func (m *Manager) onAdmitted(record *records.DownloadRecord) {
	ctx := context.Background()
	m.setLastRecord(record)
	m.markQueueActive(ctx)

	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventDownloadStarted, notifications.Payload{
		"name": record.DisplayName,
	}); err != nil {
		m.logger.Debug("start notification failed", logging.Error(err))
	}
}

// onStartFailed runs after the scheduler marks a record failed. The failure
// is a terminal outcome, so it lands in the history archive.
func (m *Manager) onStartFailed(record *records.DownloadRecord, message string) {
	ctx := context.Background()
	m.setLastRecord(record)
	m.setLastError(errors.New(message))

	if m.history != nil {
		entry := history.Entry{
			RecordID:    record.ID,
			Source:      record.Source,
			DisplayName: record.DisplayName,
			Owner:       record.Owner,
			Outcome:     history.OutcomeFailed,
			TotalBytes:  record.TotalBytes,
			CreatedAt:   record.CreatedAt,
		}
		if err := m.history.Record(ctx, entry); err != nil {
			m.logger.Warn("history archive write failed", logging.Error(err))
		}
	}
	if m.notifier != nil {
		if err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"context": fmt.Sprintf("start (download #%d)", record.ID),
			"error":   message,
		}); err != nil {
			m.logger.Debug("failure notification failed", logging.Error(err))
		}
	}
	m.checkQueueDrained(ctx)
}

// onTransferCompleted runs after the poller observes a finished transfer.
func (m *Manager) onTransferCompleted(id int64) {
	ctx := context.Background()
	record, err := m.store.Get(id)
	if err != nil {
		m.logger.Warn("completed download vanished before handoff",
			logging.Int64(logging.FieldRecordID, id),
			logging.Error(err))
		return
	}
	m.setLastRecord(record)

	if m.notifier != nil {
		if err := m.notifier.Publish(ctx, notifications.EventDownloadCompleted, notifications.Payload{
			"name": record.DisplayName,
		}); err != nil {
			m.logger.Debug("completion notification failed", logging.Error(err))
		}
	}

	if m.cfg != nil && m.cfg.Import.Auto {
		m.importer.Enqueue(id)
	} else {
		m.logger.Debug("automatic import disabled; download awaits manual import",
			logging.Int64(logging.FieldRecordID, id))
	}
	m.checkQueueDrained(ctx)
}

// onImportDone runs after the import coordinator finishes one queued import,
// whatever the outcome.
func (m *Manager) onImportDone(id int64) {
	if record, err := m.store.Get(id); err == nil {
		m.setLastRecord(record)
	}
	m.checkQueueDrained(context.Background())
}

// onGateReopened runs when the storage monitor clears the critical latch.
func (m *Manager) onGateReopened() {
	m.logger.Info("storage gate reopened; resuming admissions",
		logging.String(logging.FieldEventType, "storage_gate_reopened"))
	m.scheduler.Kick()
	m.requeueCompleted()
}
