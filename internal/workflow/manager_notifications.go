package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/volumes"
)

// markQueueActive latches the busy state on the idle-to-busy transition and
// announces the batch.
func (m *Manager) markQueueActive(ctx context.Context) {
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	if m.notifier == nil {
		return
	}
	stats := m.store.Stats()
	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{
		"count": stats.Queued + stats.Active,
	}); err != nil {
		m.logger.Debug("queue start notification failed", logging.Error(err))
	}
}

// checkQueueDrained clears the busy latch and announces the drain once no
// record is queued, transferring, importing, or waiting for an import
// worker.
func (m *Manager) checkQueueDrained(ctx context.Context) {
	m.mu.RLock()
	active := m.queueActive
	m.mu.RUnlock()
	if !active {
		return
	}

	stats := m.store.Stats()
	if stats.Queued+stats.Active+stats.Importing > 0 || m.importer.QueueDepth() > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	m.logger.Info("queue drained",
		logging.String(logging.FieldEventType, "queue_drained"),
		logging.Int("imported", stats.Imported),
		logging.Int("failed", stats.Failed),
		logging.Duration("duration", duration))

	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"imported": stats.Imported,
		"failed":   stats.Failed,
		"duration": duration.Round(time.Second).String(),
	}); err != nil {
		m.logger.Debug("queue completion notification failed", logging.Error(err))
	}
}

// storageAlerts forwards gate transitions from the monitor to the
// notification service.
type storageAlerts struct {
	manager *Manager
}

func (a *storageAlerts) StorageCritical(ctx context.Context, statuses []volumes.VolumeStatus) {
	m := a.manager
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventStorageCritical, notifications.Payload{
		"detail": criticalVolumeDetail(statuses),
	}); err != nil {
		m.logger.Debug("storage critical notification failed", logging.Error(err))
	}
}

func (a *storageAlerts) StorageRecovered(ctx context.Context) {
	m := a.manager
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventStorageRecovered, nil); err != nil {
		m.logger.Debug("storage recovery notification failed", logging.Error(err))
	}
}

func criticalVolumeDetail(statuses []volumes.VolumeStatus) string {
	const gib = float64(1 << 30)
	lines := make([]string, 0, len(statuses))
	for _, status := range statuses {
		if status.Level != volumes.LevelCritical {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %.1f GiB free", status.Path, float64(status.FreeBytes)/gib))
	}
	return strings.Join(lines, "\n")
}
