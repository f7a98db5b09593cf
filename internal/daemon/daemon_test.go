package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"capstan/internal/config"
	"capstan/internal/daemon"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
	"capstan/internal/services"
	"capstan/internal/testsupport"
	"capstan/internal/workflow"
)

type fakeEngine struct {
	mu      sync.Mutex
	paused  []int64
	resumed []int64
	stopped []int64
}

func (e *fakeEngine) Validate(ctx context.Context, source string) error { return nil }

func (e *fakeEngine) Start(ctx context.Context, sub engine.Submission) (engine.StartInfo, error) {
	return engine.StartInfo{
		Name:       fmt.Sprintf("transfer-%d", sub.RecordID),
		TotalBytes: 1 << 20,
	}, nil
}

func (e *fakeEngine) Pause(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = append(e.paused, id)
	return nil
}

func (e *fakeEngine) Resume(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumed = append(e.resumed, id)
	return nil
}

func (e *fakeEngine) Stop(ctx context.Context, id int64, deleteFiles bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, id)
	return nil
}

func (e *fakeEngine) Progress(ctx context.Context, id int64) (engine.Progress, bool, error) {
	return engine.Progress{}, false, nil
}

func (e *fakeEngine) Shutdown(ctx context.Context) error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) saw(event notifications.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, seen := range n.events {
		if seen == event {
			return true
		}
	}
	return false
}

type daemonHarness struct {
	cfg      *config.Config
	store    *records.Store
	history  *history.Store
	engine   *fakeEngine
	notifier *recordingNotifier
	daemon   *daemon.Daemon
}

func newDaemonHarness(t *testing.T, opts ...testsupport.ConfigOption) *daemonHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)

	eng := &fakeEngine{}
	store, err := records.Open(cfg, logging.NewNop(), eng, nil)
	if err != nil {
		t.Fatalf("records.Open() error = %v", err)
	}
	hist, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, logging.NewNop(), store, eng, nil, hist, notifier)

	d, err := daemon.New(cfg, logging.NewNop(), daemon.Runtime{
		Store:    store,
		Engine:   eng,
		Manager:  mgr,
		History:  hist,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("daemon.New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return &daemonHarness{
		cfg:      cfg,
		store:    store,
		history:  hist,
		engine:   eng,
		notifier: notifier,
		daemon:   d,
	}
}

func (h *daemonHarness) submit(t *testing.T, seq int) *records.DownloadRecord {
	t.Helper()
	rec, err := h.store.Create(context.Background(), fmt.Sprintf("magnet:?xt=urn:btih:%040d", seq), "tester", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec
}

func TestDaemonStartStop(t *testing.T) {
	h := newDaemonHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	status := h.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatalf("Status().PID = %d, want > 0", status.PID)
	}
	if status.SnapshotPath == "" || status.HistoryPath == "" || status.LockFilePath == "" {
		t.Fatalf("Status() missing paths: %+v", status)
	}

	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second Start() to fail")
	}

	h.daemon.Stop()
	if h.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.daemon.Stop()

	mgr := workflow.NewManagerWithNotifier(h.cfg, logging.NewNop(), h.store, h.engine, nil, nil, h.notifier)
	second, err := daemon.New(h.cfg, logging.NewNop(), daemon.Runtime{
		Store:   h.store,
		Engine:  h.engine,
		Manager: mgr,
	})
	if err != nil {
		t.Fatalf("daemon.New() error = %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be refused while the lock is held")
	}

	h.daemon.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start() after lock release error = %v", err)
	}
	second.Stop()
}

func TestDaemonPauseResume(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()
	rec := h.submit(t, 1)

	if _, err := h.daemon.PauseDownload(ctx, rec.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("PauseDownload(queued) error = %v, want conflict", err)
	}

	if _, err := h.store.Activate(rec.ID, records.StartInfo{}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	paused, err := h.daemon.PauseDownload(ctx, rec.ID)
	if err != nil {
		t.Fatalf("PauseDownload() error = %v", err)
	}
	if paused.Status != records.StatusPaused {
		t.Fatalf("Status = %s, want %s", paused.Status, records.StatusPaused)
	}
	if len(h.engine.paused) != 1 || h.engine.paused[0] != rec.ID {
		t.Fatalf("engine pause calls = %v, want [%d]", h.engine.paused, rec.ID)
	}

	resumed, err := h.daemon.ResumeDownload(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}
	if resumed.Status != records.StatusActive {
		t.Fatalf("Status = %s, want %s", resumed.Status, records.StatusActive)
	}
	if _, err := h.daemon.ResumeDownload(ctx, rec.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("ResumeDownload(active) error = %v, want conflict", err)
	}
}

func TestDaemonCancelArchivesOutcome(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()
	rec := h.submit(t, 2)

	if err := h.daemon.CancelDownload(ctx, rec.ID, false); err != nil {
		t.Fatalf("CancelDownload() error = %v", err)
	}
	if _, err := h.store.Get(rec.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get() after cancel error = %v, want not found", err)
	}

	entries, err := h.history.List(ctx, 10)
	if err != nil {
		t.Fatalf("history.List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Outcome != history.OutcomeCancelled {
		t.Fatalf("Outcome = %s, want %s", entries[0].Outcome, history.OutcomeCancelled)
	}
	if entries[0].RecordID != rec.ID {
		t.Fatalf("RecordID = %d, want %d", entries[0].RecordID, rec.ID)
	}

	if err := h.daemon.CancelDownload(ctx, rec.ID, false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("repeat CancelDownload() error = %v, want not found", err)
	}
	entries, err = h.history.List(ctx, 10)
	if err != nil {
		t.Fatalf("history.List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries after repeat cancel = %d, want 1", len(entries))
	}
}

func TestDaemonImportRequiresCompleted(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()
	rec := h.submit(t, 3)

	if err := h.daemon.ImportDownload(ctx, rec.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("ImportDownload(queued) error = %v, want conflict", err)
	}

	if _, err := h.store.Activate(rec.ID, records.StartInfo{}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if _, err := h.store.UpdateStatus(rec.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := h.daemon.ImportDownload(ctx, rec.ID); err != nil {
		t.Fatalf("ImportDownload(completed) error = %v", err)
	}
	if depth := h.daemon.Status(ctx).Workflow.ImportQueue; depth != 1 {
		t.Fatalf("import queue depth = %d, want 1", depth)
	}
}

func TestDaemonCreatePublishesNotification(t *testing.T) {
	h := newDaemonHarness(t)

	rec, err := h.daemon.CreateDownload(context.Background(), fmt.Sprintf("magnet:?xt=urn:btih:%040d", 4), "tester", "")
	if err != nil {
		t.Fatalf("CreateDownload() error = %v", err)
	}
	if rec.Status != records.StatusQueued {
		t.Fatalf("Status = %s, want %s", rec.Status, records.StatusQueued)
	}
	if !h.notifier.saw(notifications.EventDownloadAdded) {
		t.Fatal("expected a download_added notification")
	}
}

func TestDaemonTriggerCleanupKeepsLiveStaging(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()
	rec := h.submit(t, 5)

	liveDir := rec.StagingPath
	if liveDir == "" {
		liveDir = filepath.Join(h.cfg.Paths.StagingDir, fmt.Sprintf("%d", rec.ID))
	}
	orphanDir := filepath.Join(h.cfg.Paths.StagingDir, "99")
	for _, dir := range []string{liveDir, orphanDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%s) error = %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "payload.bin"), []byte("data"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	result, err := h.daemon.TriggerCleanup(ctx, 0, true)
	if err != nil {
		t.Fatalf("TriggerCleanup() error = %v", err)
	}
	if !result.Configured {
		t.Fatal("expected cleanup to report a configured staging dir")
	}
	if len(result.Removed.Removed) != 1 {
		t.Fatalf("removed dirs = %v, want exactly the orphan", result.Removed.Removed)
	}
	if _, err := os.Stat(liveDir); err != nil {
		t.Fatalf("live staging dir missing after cleanup: %v", err)
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Fatalf("orphan staging dir still present, stat error = %v", err)
	}
}
