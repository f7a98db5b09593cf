package workflow

import (
	"context"

	"capstan/internal/records"
	"capstan/internal/volumes"
)

// StatusSummary is the lightweight diagnostic view served to the control
// surfaces.
type StatusSummary struct {
	Running     bool
	QueueActive bool
	LastError   string
	LastRecord  *records.DownloadRecord
	Stats       records.Stats
	Volumes     []volumes.VolumeStatus
	ImportQueue int
	Components  []ComponentHealth
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	queueActive := m.queueActive
	lastErr := m.lastErr
	lastRecord := m.lastRecord
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		QueueActive: queueActive,
		Stats:       m.store.Stats(),
		ImportQueue: m.importer.QueueDepth(),
		Components:  m.componentHealth(ctx),
	}
	if m.monitor != nil {
		summary.Volumes = m.monitor.Statuses()
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRecord != nil {
		summary.LastRecord = lastRecord.Clone()
	}
	return summary
}

func (m *Manager) componentHealth(ctx context.Context) []ComponentHealth {
	health := make([]ComponentHealth, 0, 3)

	snapshot := m.store.Health()
	if snapshot.Error != "" {
		health = append(health, Unhealthy("records", snapshot.Error))
	} else {
		health = append(health, Healthy("records"))
	}

	if m.monitor != nil {
		if m.monitor.IsCritical() {
			health = append(health, Unhealthy("storage", "free space below critical threshold"))
		} else {
			health = append(health, Healthy("storage"))
		}
	}

	if m.history != nil {
		dbHealth, err := m.history.CheckHealth(ctx)
		switch {
		case err != nil:
			health = append(health, Unhealthy("history", err.Error()))
		case dbHealth.Error != "":
			health = append(health, Unhealthy("history", dbHealth.Error))
		case !dbHealth.IntegrityCheck:
			health = append(health, Unhealthy("history", "integrity check failed"))
		default:
			health = append(health, Healthy("history"))
		}
	}
	return health
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRecord(record *records.DownloadRecord) {
	m.mu.Lock()
	m.lastRecord = record.Clone()
	m.mu.Unlock()
}
