package records

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"capstan/internal/config"
	"capstan/internal/logging"
	"capstan/internal/services"
)

// EngineContract is the narrow slice of the transfer engine the store
// consumes: source validation before a record exists and session teardown
// when one is cancelled. A nil engine accepts every source and skips stops.
type EngineContract interface {
	Validate(ctx context.Context, source string) error
	Stop(ctx context.Context, id int64, deleteFiles bool) error
}

// AdmissionGate mirrors the storage monitor's critical gate. A nil gate is
// treated as open.
type AdmissionGate interface {
	IsCritical() bool
}

// Store owns the canonical record collection and its durable snapshot.
type Store struct {
	mu         sync.Mutex
	path       string
	stagingDir string
	maxActive  int
	logger     *slog.Logger
	engine     EngineContract
	gate       AdmissionGate

	records map[int64]*DownloadRecord
	nextID  int64
}

// Open loads the snapshot from the configured state directory and returns a
// ready store. Restart demotions are applied and persisted before Open
// returns so the scheduler sees a consistent collection.
func Open(cfg *config.Config, logger *slog.Logger, engine EngineContract, gate AdmissionGate) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "records", "open", "configuration is required", nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	store := &Store{
		path:       SnapshotPath(cfg.Paths.LogDir),
		stagingDir: cfg.Paths.StagingDir,
		maxActive:  cfg.Scheduler.MaxActive,
		logger:     logging.ComponentLogger(logger, "records", logging.ComponentOverrides(cfg)),
		engine:     engine,
		gate:       gate,
		records:    make(map[int64]*DownloadRecord),
		nextID:     1,
	}
	store.load()
	return store, nil
}

// Create validates a source, materializes a queued record, and persists the
// collection. A critical storage condition refuses new submissions.
func (s *Store) Create(ctx context.Context, source, owner, destinationID string) (*DownloadRecord, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "records", "create", "source is required", nil)
	}
	if s.engine != nil {
		if err := s.engine.Validate(ctx, source); err != nil {
			return nil, services.Wrap(services.ErrValidation, "records", "create", "source rejected by engine", err)
		}
	}
	if s.gate != nil && s.gate.IsCritical() {
		return nil, services.Wrap(services.ErrConflict, "records", "create", "storage is critical; refusing new downloads", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	record := &DownloadRecord{
		ID:            id,
		Source:        source,
		Owner:         strings.TrimSpace(owner),
		DisplayName:   DeriveDisplayName(source),
		Status:        StatusQueued,
		StagingPath:   StagingPathFor(s.stagingDir, id),
		DestinationID: strings.TrimSpace(destinationID),
		CreatedAt:     time.Now().UTC(),
	}
	s.records[id] = record
	s.persistLocked()

	s.logger.Info("download queued",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "download_queued"),
		logging.String("name", record.DisplayName),
		logging.String("source", record.Source))
	return record.Clone(), nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id int64) (*DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "records", "get", fmt.Sprintf("download %d", id), nil)
	}
	return record.Clone(), nil
}

// List returns copies of records in submission order, optionally filtered by
// status.
func (s *Store) List(statuses ...Status) []*DownloadRecord {
	filter := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		filter[status] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DownloadRecord, 0, len(s.records))
	for _, record := range s.orderedLocked() {
		if len(filter) > 0 {
			if _, ok := filter[record.Status]; !ok {
				continue
			}
		}
		out = append(out, record.Clone())
	}
	return out
}

// NextQueued returns a copy of the oldest queued record, if any. The
// scheduler re-confirms eligibility through Activate after the engine start
// returns, so the answer here is only a candidate.
func (s *Store) NextQueued() (*DownloadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.orderedLocked() {
		if record.Status == StatusQueued {
			return record.Clone(), true
		}
	}
	return nil, false
}

// ActiveIDs snapshots the ids of records currently in active status. The
// poller queries the engine against this list without holding the lock.
func (s *Store) ActiveIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.records))
	for _, record := range s.orderedLocked() {
		if record.Status == StatusActive {
			ids = append(ids, record.ID)
		}
	}
	return ids
}

// Stats aggregates record counts per status.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{Total: len(s.records)}
	for _, record := range s.records {
		switch record.Status {
		case StatusQueued:
			stats.Queued++
		case StatusActive:
			stats.Active++
		case StatusPaused:
			stats.Paused++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusImporting:
			stats.Importing++
		case StatusImported:
			stats.Imported++
		}
	}
	return stats
}

// MaxActive exposes the configured concurrency limit.
func (s *Store) MaxActive() int {
	return s.maxActive
}

// Flush forces a synchronous snapshot write, surfacing the error to the
// caller. The daemon invokes it once during shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(); err != nil {
		return services.Wrap(services.ErrPersistence, "records", "flush", "final snapshot write failed", err)
	}
	return nil
}

// orderedLocked returns the collection sorted by id, which matches
// submission order because ids are assigned monotonically. Callers hold s.mu
// and must not retain the returned pointers past the lock.
func (s *Store) orderedLocked() []*DownloadRecord {
	out := make([]*DownloadRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) activeCountLocked() int {
	count := 0
	for _, record := range s.records {
		if record.Status == StatusActive {
			count++
		}
	}
	return count
}
