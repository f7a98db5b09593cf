package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
	"capstan/internal/volumes"
	"capstan/internal/workflow"
)

// Runtime carries the subsystem handles the daemon serves. Store, Engine,
// and Manager are required; the others degrade to reduced functionality
// when absent.
type Runtime struct {
	Store      *records.Store
	Engine     engine.Engine
	Manager    *workflow.Manager
	Monitor    *volumes.Monitor
	History    *history.Store
	Notifier   notifications.Service
	LogPath    string
	LogHub     *logging.StreamHub
	LogArchive *logging.EventArchive
}

// Daemon coordinates the background components and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	engine   engine.Engine
	manager  *workflow.Manager
	monitor  *volumes.Monitor
	history  *history.Store
	notifier notifications.Service

	logPath    string
	logHub     *logging.StreamHub
	logArchive *logging.EventArchive

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	SnapshotPath string
	HistoryPath  string
	LockFilePath string
}

// New constructs a daemon around initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, rt Runtime) (*Daemon, error) {
	if cfg == nil || rt.Store == nil || rt.Engine == nil || rt.Manager == nil {
		return nil, errors.New("daemon requires config, record store, engine, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := rt.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	logPath := strings.TrimSpace(rt.LogPath)
	if logPath == "" {
		logPath = filepath.Join(cfg.Paths.LogDir, "capstan.log")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "capstand.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.ComponentLogger(logger, "daemon", logging.ComponentOverrides(cfg)),
		store:      rt.Store,
		engine:     rt.Engine,
		manager:    rt.Manager,
		monitor:    rt.Monitor,
		history:    rt.History,
		notifier:   notifier,
		logPath:    logPath,
		logHub:     rt.LogHub,
		logArchive: rt.LogArchive,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and brings
// up the optional HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another capstan daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.manager.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.api != nil {
		// A busy bind must not take the daemon down; IPC still serves.
		if err := d.api.start(d.ctx); err != nil {
			d.logger.Error("http api failed to start",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_start_failed"),
				logging.String(logging.FieldErrorHint, "check paths.api_bind for a port conflict"))
		}
	}

	d.running.Store(true)
	d.logger.Info("capstan daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("capstan daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases storage resources. The final snapshot
// flush runs after the components stop so it captures their last writes.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		if err := d.store.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.manager.Status(ctx),
		SnapshotPath: records.SnapshotPath(d.cfg.Paths.LogDir),
		LockFilePath: d.lockPath,
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}

// LogPath returns the path of the active daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log event hub, if one was wired.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogArchive returns the on-disk log event journal, if one was wired.
func (d *Daemon) LogArchive() *logging.EventArchive {
	return d.logArchive
}
