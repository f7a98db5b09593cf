package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
	"capstan/internal/testsupport"
	"capstan/internal/workflow"
)

// fakeEngine satisfies the engine contract and the narrow slice the record
// store consumes. Every started session reports as complete on the first
// progress sample unless the test pins a progress reply.
type fakeEngine struct {
	mu        sync.Mutex
	failStart map[int64]error
	progress  map[int64]engine.Progress
	started   []int64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		failStart: make(map[int64]error),
		progress:  make(map[int64]engine.Progress),
	}
}

func (e *fakeEngine) Validate(ctx context.Context, source string) error { return nil }

func (e *fakeEngine) Start(ctx context.Context, sub engine.Submission) (engine.StartInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failStart[sub.RecordID]; err != nil {
		return engine.StartInfo{}, err
	}
	e.started = append(e.started, sub.RecordID)
	return engine.StartInfo{
		Name:        fmt.Sprintf("transfer-%d", sub.RecordID),
		TotalBytes:  1 << 20,
		Fingerprint: fmt.Sprintf("hash-%d", sub.RecordID),
	}, nil
}

func (e *fakeEngine) Pause(ctx context.Context, id int64) error  { return nil }
func (e *fakeEngine) Resume(ctx context.Context, id int64) error { return nil }

func (e *fakeEngine) Stop(ctx context.Context, id int64, deleteFiles bool) error { return nil }

func (e *fakeEngine) Progress(ctx context.Context, id int64) (engine.Progress, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sample, ok := e.progress[id]; ok {
		return sample, true, nil
	}
	return engine.Progress{
		TotalBytes:     1 << 20,
		CompletedBytes: 1 << 20,
		Complete:       true,
	}, true, nil
}

func (e *fakeEngine) Shutdown(ctx context.Context) error { return nil }

func (e *fakeEngine) setProgress(id int64, sample engine.Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress[id] = sample
}

type publishedEvent struct {
	event notifications.Event
	data  notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, data notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{event: event, data: data})
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) countOf(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, published := range n.events {
		if published.event == event {
			count++
		}
	}
	return count
}

type managerHarness struct {
	cfg      *config.Config
	store    *records.Store
	history  *history.Store
	engine   *fakeEngine
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newManagerHarness(t *testing.T, opts ...testsupport.ConfigOption) *managerHarness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{
		testsupport.WithPollerInterval(1),
		testsupport.WithImportBackoff(1, 2),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)

	eng := newFakeEngine()
	store, err := records.Open(cfg, logging.NewNop(), eng, nil)
	if err != nil {
		t.Fatalf("records.Open() error = %v", err)
	}
	hist, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, logging.NewNop(), store, eng, nil, hist, notifier)
	return &managerHarness{
		cfg:      cfg,
		store:    store,
		history:  hist,
		engine:   eng,
		notifier: notifier,
		manager:  mgr,
	}
}

// submitWithPayload queues a download and materializes the staged files the
// import step will pick up once the transfer completes.
func (h *managerHarness) submitWithPayload(t *testing.T, seq int) *records.DownloadRecord {
	t.Helper()
	rec, err := h.store.Create(context.Background(), fmt.Sprintf("magnet:?xt=urn:btih:%040d", seq), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	payload := filepath.Join(rec.StagingPath, "feature.mkv")
	if err := os.MkdirAll(rec.StagingPath, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(payload, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return rec
}

func (h *managerHarness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func waitForStatus(t *testing.T, store *records.Store, id int64, want records.Status, timeout time.Duration) *records.DownloadRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		record, err := store.Get(id)
		if err == nil && record.Status == want {
			return record
		}
		time.Sleep(20 * time.Millisecond)
	}
	record, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get(%d) error = %v while waiting for %s", id, err, want)
	}
	t.Fatalf("record %d stuck at %s (error message %q), want %s", id, record.Status, record.ErrorMessage, want)
	return nil
}

func TestManagerRunsDownloadToImported(t *testing.T) {
	h := newManagerHarness(t)
	rec := h.submitWithPayload(t, 1)

	h.start(t)

	imported := waitForStatus(t, h.store, rec.ID, records.StatusImported, 15*time.Second)
	if imported.ImportedAt == nil {
		t.Error("ImportedAt not stamped")
	}
	if imported.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if imported.DisplayName != fmt.Sprintf("transfer-%d", rec.ID) {
		t.Errorf("DisplayName = %q, want engine-reported name", imported.DisplayName)
	}

	videoDir := filepath.Join(h.cfg.Paths.LibraryDir, h.cfg.Catalog.VideoDir)
	placed := filepath.Join(videoDir, imported.DisplayName, "feature.mkv")
	if _, err := os.Stat(placed); err != nil {
		t.Errorf("imported payload missing: %v", err)
	}

	rows, err := h.history.List(context.Background(), 10, history.OutcomeImported)
	if err != nil {
		t.Fatalf("history List() error = %v", err)
	}
	if len(rows) != 1 || rows[0].RecordID != rec.ID {
		t.Errorf("history rows = %+v, want one imported row for %d", rows, rec.ID)
	}

	for _, event := range []notifications.Event{
		notifications.EventDownloadStarted,
		notifications.EventDownloadCompleted,
		notifications.EventDownloadImported,
		notifications.EventQueueStarted,
	} {
		if got := h.notifier.countOf(event); got != 1 {
			t.Errorf("%s notifications = %d, want 1", event, got)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.notifier.countOf(notifications.EventQueueCompleted) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := h.notifier.countOf(notifications.EventQueueCompleted); got != 1 {
		t.Errorf("queue completed notifications = %d, want 1", got)
	}
}

func TestManagerStartRejectsSecondStart(t *testing.T) {
	h := newManagerHarness(t)

	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.manager.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
	h.manager.Stop()

	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	h.manager.Stop()
}

func TestManagerStatusReportsComponents(t *testing.T) {
	h := newManagerHarness(t)

	status := h.manager.Status(context.Background())
	if status.Running {
		t.Error("Running = true before Start")
	}
	ready := make(map[string]bool, len(status.Components))
	for _, component := range status.Components {
		ready[component.Name] = component.Ready
	}
	for _, name := range []string{"records", "history"} {
		if ok, present := ready[name]; !present || !ok {
			t.Errorf("component %s health = %v (present %v), want ready", name, ok, present)
		}
	}

	h.start(t)
	status = h.manager.Status(context.Background())
	if !status.Running {
		t.Error("Running = false after Start")
	}
}

func TestManagerArchivesStartFailures(t *testing.T) {
	h := newManagerHarness(t)
	rec := h.submitWithPayload(t, 2)
	h.engine.failStart[rec.ID] = errors.New("tracker unreachable")

	h.start(t)

	failed := waitForStatus(t, h.store, rec.ID, records.StatusFailed, 10*time.Second)
	if failed.ErrorMessage == "" {
		t.Error("failed record has no diagnostic")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := h.history.List(context.Background(), 10, history.OutcomeFailed)
		if err != nil {
			t.Fatalf("history List() error = %v", err)
		}
		if len(rows) == 1 && rows[0].RecordID == rec.ID {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	rows, err := h.history.List(context.Background(), 10, history.OutcomeFailed)
	if err != nil {
		t.Fatalf("history List() error = %v", err)
	}
	if len(rows) != 1 || rows[0].RecordID != rec.ID {
		t.Fatalf("failed history rows = %+v, want one row for %d", rows, rec.ID)
	}
	if got := h.notifier.countOf(notifications.EventError); got != 1 {
		t.Errorf("error notifications = %d, want 1", got)
	}

	status := h.manager.Status(context.Background())
	if status.LastError == "" {
		t.Error("Status.LastError empty after start failure")
	}
}

func TestManagerLeavesCompletedWhenAutoImportOff(t *testing.T) {
	h := newManagerHarness(t, testsupport.WithAutoImportDisabled())
	first := h.submitWithPayload(t, 3)
	second := h.submitWithPayload(t, 4)

	h.start(t)

	waitForStatus(t, h.store, first.ID, records.StatusCompleted, 15*time.Second)
	waitForStatus(t, h.store, second.ID, records.StatusCompleted, 15*time.Second)

	if got := h.notifier.countOf(notifications.EventQueueStarted); got != 1 {
		t.Errorf("queue started notifications = %d, want 1", got)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.notifier.countOf(notifications.EventQueueCompleted) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := h.notifier.countOf(notifications.EventQueueCompleted); got != 1 {
		t.Errorf("queue completed notifications = %d, want 1", got)
	}
	if got := h.notifier.countOf(notifications.EventDownloadImported); got != 0 {
		t.Errorf("imported notifications = %d, want 0 with auto import off", got)
	}

	stats := h.store.Stats()
	if stats.Completed != 2 || stats.Imported != 0 {
		t.Errorf("Stats = %+v, want 2 completed, 0 imported", stats)
	}
}

func TestManagerStartRequeuesCompletedDownloads(t *testing.T) {
	h := newManagerHarness(t)
	rec := h.submitWithPayload(t, 5)
	if _, err := h.store.Activate(rec.ID, records.StartInfo{Name: "Leftover Transfer"}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if _, err := h.store.UpdateStatus(rec.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	h.start(t)

	imported := waitForStatus(t, h.store, rec.ID, records.StatusImported, 10*time.Second)
	if imported.ImportedAt == nil {
		t.Error("ImportedAt not stamped after requeue")
	}
}

func TestManagerRestartReadmitsInterruptedDownloads(t *testing.T) {
	h := newManagerHarness(t)
	rec := h.submitWithPayload(t, 6)
	if _, err := h.store.Activate(rec.ID, records.StartInfo{Name: "Interrupted Transfer"}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	// A fresh store over the same snapshot simulates a daemon restart: the
	// persisted active record demotes to queued on load.
	reopened, err := records.Open(h.cfg, logging.NewNop(), h.engine, nil)
	if err != nil {
		t.Fatalf("records.Open() error = %v", err)
	}
	demoted, err := reopened.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if demoted.Status != records.StatusQueued {
		t.Fatalf("status after reload = %s, want %s", demoted.Status, records.StatusQueued)
	}

	mgr := workflow.NewManagerWithNotifier(h.cfg, logging.NewNop(), reopened, h.engine, nil, h.history, h.notifier)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(mgr.Stop)

	imported := waitForStatus(t, reopened, rec.ID, records.StatusImported, 15*time.Second)
	if imported.ImportedAt == nil {
		t.Error("ImportedAt not stamped after restart")
	}
}
