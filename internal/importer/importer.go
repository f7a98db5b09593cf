package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"capstan/internal/catalog"
	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/records"
	"capstan/internal/services"
	"capstan/internal/volumes"
)

// StorageProbe is the slice of the volume monitor the importer consumes:
// the admission gate and a fresh free-space read for the destination
// volume. A nil probe skips both checks.
type StorageProbe interface {
	IsCritical() bool
	FreeBytes(path string) (uint64, error)
}

// SessionStopper releases a record's engine session before its staged files
// move away. A nil stopper skips the release.
type SessionStopper interface {
	Stop(ctx context.Context, id int64, deleteFiles bool) error
}

// errNoDestination aborts the retry loop: waiting will not conjure up a
// catalog destination.
var errNoDestination = errors.New("no destination available")

// Importer drains completed downloads into the catalog.
type Importer struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	catalog  catalog.Catalog
	history  *history.Store
	storage  StorageProbe
	stopper  SessionStopper
	notifier notifications.Service

	maxAttempts   int
	backoffBase   time.Duration
	workers       int
	removeStaging bool

	// sleep is the backoff wait, split out so tests can observe delays
	// without serving them.
	sleep func(ctx context.Context, d time.Duration) error

	done func(int64)

	mu      sync.Mutex
	pending []int64
	wake    chan struct{}
}

// New builds the import coordinator with production collaborators.
func New(cfg *config.Config, logger *slog.Logger, store *records.Store, cat catalog.Catalog, hist *history.Store, monitor *volumes.Monitor, eng engine.Engine) *Importer {
	var storage StorageProbe
	if monitor != nil {
		storage = monitor
	}
	var stopper SessionStopper
	if eng != nil {
		stopper = eng
	}
	return NewWithDependencies(cfg, logger, store, cat, hist, storage, stopper, notifications.NewService(cfg))
}

// NewWithDependencies allows injecting collaborators (used in tests).
func NewWithDependencies(cfg *config.Config, logger *slog.Logger, store *records.Store, cat catalog.Catalog, hist *history.Store, storage StorageProbe, stopper SessionStopper, notifier notifications.Service) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	imp := &Importer{
		cfg:         cfg,
		logger:      logging.ComponentLogger(logger, "importer", logging.ComponentOverrides(cfg)),
		store:       store,
		catalog:     cat,
		history:     hist,
		storage:     storage,
		stopper:     stopper,
		notifier:    notifier,
		maxAttempts: 3,
		backoffBase: 5 * time.Second,
		workers:     2,
		wake:        make(chan struct{}, 1),
	}
	imp.sleep = imp.sleepContext
	if cfg != nil {
		if cfg.Import.MaxAttempts > 0 {
			imp.maxAttempts = cfg.Import.MaxAttempts
		}
		if cfg.Import.BackoffBaseSeconds > 0 {
			imp.backoffBase = time.Duration(cfg.Import.BackoffBaseSeconds) * time.Second
		}
		if cfg.Import.Workers > 0 {
			imp.workers = cfg.Import.Workers
		}
		imp.removeStaging = cfg.Import.RemoveStaging
	}
	return imp
}

// SetDone registers a hook invoked after each drained import finishes,
// whatever the outcome. Must be set before Run.
func (i *Importer) SetDone(hook func(int64)) {
	if i == nil {
		return
	}
	i.done = hook
}

// Enqueue adds a record id to the import queue. Duplicate ids already
// waiting are coalesced; ids queued before Run starts are drained when it
// does.
func (i *Importer) Enqueue(id int64) {
	if i == nil {
		return
	}
	i.mu.Lock()
	for _, waiting := range i.pending {
		if waiting == id {
			i.mu.Unlock()
			return
		}
	}
	i.pending = append(i.pending, id)
	i.mu.Unlock()

	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// QueueDepth reports how many imports are waiting for a worker.
func (i *Importer) QueueDepth() int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

func (i *Importer) dequeue() (int64, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.pending) == 0 {
		return 0, false
	}
	id := i.pending[0]
	i.pending = i.pending[1:]
	return id, true
}

// Run drains the queue with a bounded worker pool until ctx is cancelled.
// Cancellation stops new imports from starting; in-flight imports run to
// completion before Run returns so no move is abandoned halfway.
func (i *Importer) Run(ctx context.Context) {
	group := new(errgroup.Group)
	group.SetLimit(i.workers)
	defer func() {
		_ = group.Wait()
	}()

	i.drain(ctx, group)
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.wake:
			i.drain(ctx, group)
		}
	}
}

func (i *Importer) drain(ctx context.Context, group *errgroup.Group) {
	for {
		if ctx.Err() != nil {
			return
		}
		id, ok := i.dequeue()
		if !ok {
			return
		}
		group.Go(func() error {
			i.Import(ctx, id)
			if i.done != nil {
				i.done(id)
			}
			return nil
		})
	}
}

// Import runs the full retry-backed import of one record synchronously.
// Run's workers call it for queued ids; control surfaces enqueue instead so
// their calls return immediately.
func (i *Importer) Import(ctx context.Context, id int64) {
	logger := i.logger.With(logging.Int64(logging.FieldRecordID, id))

	record, err := i.store.Get(id)
	if err != nil {
		logger.Warn("import requested for unknown download",
			logging.String(logging.FieldEventType, "import_unknown_record"),
			logging.Error(err))
		return
	}
	if record.Status != records.StatusCompleted {
		logger.Debug("import skipped",
			logging.Args(logging.DecisionAttrs("import", "skipped", fmt.Sprintf("download is %s, not completed", record.Status))...)...)
		return
	}
	if i.storage != nil && i.storage.IsCritical() {
		logger.Info("import blocked",
			logging.Args(logging.DecisionAttrs("import", "blocked", "storage critical")...)...)
		return
	}
	if _, err := os.Stat(record.StagingPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("staging path missing; nothing to import",
				logging.String(logging.FieldEventType, "import_staging_missing"),
				logging.String("staging_path", record.StagingPath))
		} else {
			logging.WarnWithContext(logger, "staging path unreadable; import skipped", "import_staging_unreadable",
				logging.String("staging_path", record.StagingPath),
				logging.Error(err))
		}
		return
	}

	if _, err := i.store.UpdateStatus(id, records.StatusImporting, ""); err != nil {
		logger.Warn("could not mark download importing",
			logging.String(logging.FieldEventType, "import_transition_failed"),
			logging.Error(err))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		destination, err := i.attempt(ctx, record, logger)
		if err == nil {
			i.finish(ctx, record, destination, attempt, logger)
			return
		}
		if errors.Is(err, errNoDestination) {
			i.revert(id, "no catalog destination available", logger)
			logger.Warn("import aborted; no destination resolves",
				logging.String(logging.FieldEventType, "import_no_destination"),
				logging.String(logging.FieldErrorHint, "configure catalog directories or set import.default_destination"))
			return
		}

		lastErr = err
		if attempt == i.maxAttempts {
			break
		}
		delay := backoffDelay(i.backoffBase, attempt)
		logger.Warn("import attempt failed; retrying",
			logging.String(logging.FieldEventType, "import_retry"),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(err))
		if err := i.sleep(ctx, delay); err != nil {
			i.revert(id, "import interrupted by shutdown", logger)
			return
		}
	}

	details := services.Details(lastErr)
	diagnostic := details.Message
	if details.Cause != "" {
		diagnostic = diagnostic + ": " + details.Cause
	}
	i.revert(id, fmt.Sprintf("import failed after %d attempts: %s", i.maxAttempts, diagnostic), logger)
	logging.ErrorWithContext(logger, "import failed; retries exhausted", "import_failed",
		logging.Int("attempts", i.maxAttempts),
		logging.Error(lastErr))
	if i.notifier != nil {
		if err := i.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"context": fmt.Sprintf("import (download #%d)", id),
			"error":   lastErr,
		}); err != nil {
			logger.Warn("import failure notification failed", logging.Error(err))
		}
	}
}

// backoffDelay returns the wait before the retry that follows the given
// failed attempt: base, then doubled per additional failure.
func backoffDelay(base time.Duration, failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return base << (failedAttempt - 1)
}

func (i *Importer) sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// revert returns an importing record to completed so later imports can try
// again. The diagnostic lands in the record's error message.
func (i *Importer) revert(id int64, message string, logger *slog.Logger) {
	if _, err := i.store.UpdateStatus(id, records.StatusCompleted, message); err != nil {
		logger.Warn("could not revert download to completed",
			logging.String(logging.FieldEventType, "import_revert_failed"),
			logging.Error(err))
	}
}

func (i *Importer) finish(ctx context.Context, record *records.DownloadRecord, destination string, attempt int, logger *slog.Logger) {
	updated, err := i.store.UpdateStatus(record.ID, records.StatusImported, "")
	if err != nil {
		logger.Warn("could not mark download imported",
			logging.String(logging.FieldEventType, "import_transition_failed"),
			logging.Error(err))
		return
	}

	if i.history != nil {
		entry := history.Entry{
			RecordID:    updated.ID,
			Source:      updated.Source,
			DisplayName: updated.DisplayName,
			Owner:       updated.Owner,
			Outcome:     history.OutcomeImported,
			TotalBytes:  updated.TotalBytes,
			Destination: destination,
			CreatedAt:   updated.CreatedAt,
		}
		if err := i.history.Record(ctx, entry); err != nil {
			logger.Warn("history archive write failed", logging.Error(err))
		}
	}

	logger.Info("import completed",
		logging.String(logging.FieldEventType, "import_completed"),
		logging.String("destination", destination),
		logging.Int("attempt", attempt),
		logging.String("name", updated.DisplayName))

	if i.notifier != nil {
		if err := i.notifier.Publish(ctx, notifications.EventDownloadImported, notifications.Payload{
			"name":        updated.DisplayName,
			"destination": destination,
		}); err != nil {
			logger.Warn("import notification failed", logging.Error(err))
		}
	}
}
