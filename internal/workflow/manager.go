package workflow

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"capstan/internal/catalog"
	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/importer"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/poller"
	"capstan/internal/records"
	"capstan/internal/scheduler"
	"capstan/internal/volumes"
)

// Manager builds the background components around the record store and
// supervises their goroutines.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	engine   engine.Engine
	monitor  *volumes.Monitor
	history  *history.Store
	catalog  catalog.Catalog
	notifier notifications.Service

	scheduler *scheduler.Scheduler
	poller    *poller.Poller
	importer  *importer.Importer

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastRecord *records.DownloadRecord

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs the workflow manager with production collaborators.
// The monitor doubles as the scheduler's admission gate and the importer's
// space probe; a nil monitor leaves both open.
func NewManager(cfg *config.Config, logger *slog.Logger, store *records.Store, eng engine.Engine, monitor *volumes.Monitor, hist *history.Store) *Manager {
	return NewManagerWithNotifier(cfg, logger, store, eng, monitor, hist, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with an injected
// notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, logger *slog.Logger, store *records.Store, eng engine.Engine, monitor *volumes.Monitor, hist *history.Store, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logging.ComponentLogger(logger, "workflow", logging.ComponentOverrides(cfg)),
		store:    store,
		engine:   eng,
		monitor:  monitor,
		history:  hist,
		catalog:  catalog.NewDirectoryCatalog(cfg),
		notifier: notifier,
	}

	var gate scheduler.Gate
	var probe importer.StorageProbe
	if monitor != nil {
		gate = monitor
		probe = monitor
	}
	var stopper importer.SessionStopper
	if eng != nil {
		stopper = eng
	}
	m.scheduler = scheduler.New(cfg, logger, store, eng, gate)
	m.poller = poller.New(cfg, logger, store, eng)
	m.importer = importer.NewWithDependencies(cfg, logger, store, m.catalog, hist, probe, stopper, notifier)

	m.wire()
	return m
}

// wire connects the component hand-off hooks. It runs once at construction,
// before any component goroutine starts.
func (m *Manager) wire() {
	if m.monitor != nil {
		m.monitor.SetActivityProbe(func() bool {
			stats := m.store.Stats()
			return stats.Active > 0 || stats.Importing > 0
		})
		m.monitor.SetGateReopened(m.onGateReopened)
		m.monitor.SetAlertSink(&storageAlerts{manager: m})
	}

	m.scheduler.SetAdmitted(m.onAdmitted)
	m.scheduler.SetFailed(m.onStartFailed)

	m.poller.SetKick(m.scheduler.Kick)
	m.poller.SetCompleted(m.onTransferCompleted)

	m.importer.SetDone(m.onImportDone)
}

// Scheduler exposes the admission scheduler for control surfaces that need
// to kick a pass after a resume.
func (m *Manager) Scheduler() *scheduler.Scheduler {
	return m.scheduler
}

// Importer exposes the import coordinator so manual import requests can be
// queued.
func (m *Manager) Importer() *importer.Importer {
	return m.importer
}
