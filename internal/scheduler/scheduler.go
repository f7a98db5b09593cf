package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/logging"
	"capstan/internal/records"
	"capstan/internal/services"
)

// Gate is the storage admission gate consulted before each admission.
type Gate interface {
	IsCritical() bool
}

// Scheduler owns the queued to active transition. Passes are serialized by
// passMu so concurrent triggers cannot double-admit past the limit.
type Scheduler struct {
	store    *records.Store
	engine   engine.Engine
	gate     Gate
	logger   *slog.Logger
	interval time.Duration
	admitted func(*records.DownloadRecord)
	failed   func(*records.DownloadRecord, string)

	kick   chan struct{}
	passMu sync.Mutex
}

// New builds a scheduler around the record store and engine. A nil gate is
// treated as open.
func New(cfg *config.Config, logger *slog.Logger, store *records.Store, eng engine.Engine, gate Gate) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := 5 * time.Second
	if cfg != nil && cfg.Scheduler.KickInterval > 0 {
		interval = time.Duration(cfg.Scheduler.KickInterval) * time.Second
	}
	return &Scheduler{
		store:    store,
		engine:   eng,
		gate:     gate,
		logger:   logging.ComponentLogger(logger, "scheduler", logging.ComponentOverrides(cfg)),
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// SetAdmitted registers a hook invoked after each successful admission.
// Must be set before Run.
func (s *Scheduler) SetAdmitted(hook func(*records.DownloadRecord)) {
	if s == nil {
		return
	}
	s.admitted = hook
}

// SetFailed registers a hook invoked with the failed record and its
// diagnostic after a start failure is recorded. Must be set before Run.
func (s *Scheduler) SetFailed(hook func(*records.DownloadRecord, string)) {
	if s == nil {
		return
	}
	s.failed = hook
}

// Kick requests an admission pass without blocking. Pending kicks coalesce.
func (s *Scheduler) Kick() {
	if s == nil {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run executes an immediate pass for records demoted by a restart, then
// passes on every kick and on the safety interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-time.After(s.interval):
		}
		s.RunPass(ctx)
	}
}

type admitOutcome int

const (
	admitOK admitOutcome = iota
	admitNextCandidate
	admitStopPass
)

// RunPass admits queued records until capacity fills, the gate closes, the
// queue drains, or ctx is cancelled. It returns the number of records
// admitted by this pass.
func (s *Scheduler) RunPass(ctx context.Context) int {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	passID := uuid.NewString()
	admitted := 0
	for {
		if ctx.Err() != nil {
			return admitted
		}
		if s.gate != nil && s.gate.IsCritical() {
			if admitted == 0 {
				attrs := append(logging.DecisionAttrs("admission", "blocked", "storage critical"),
					logging.String("pass_id", passID))
				s.logger.Debug("admission pass blocked", logging.Args(attrs...)...)
			}
			return admitted
		}
		if limit := s.store.MaxActive(); limit > 0 && s.store.Stats().Active >= limit {
			return admitted
		}
		candidate, ok := s.store.NextQueued()
		if !ok {
			return admitted
		}

		switch s.admit(ctx, candidate, passID) {
		case admitOK:
			admitted++
		case admitNextCandidate:
		case admitStopPass:
			return admitted
		}
	}
}

// admit starts one candidate on the engine and promotes it. The engine start
// runs without any store lock held; the promotion re-checks eligibility so a
// cancel, a taken slot, or a gate flip during the start is honored.
func (s *Scheduler) admit(ctx context.Context, candidate *records.DownloadRecord, passID string) admitOutcome {
	info, err := s.engine.Start(ctx, engine.Submission{
		RecordID:    candidate.ID,
		Source:      candidate.Source,
		StagingPath: candidate.StagingPath,
	})
	if err != nil {
		if ctx.Err() != nil {
			return admitStopPass
		}
		s.failCandidate(candidate, err)
		return admitNextCandidate
	}

	record, err := s.store.Activate(candidate.ID, records.StartInfo{
		Name:        info.Name,
		TotalBytes:  info.TotalBytes,
		Fingerprint: info.Fingerprint,
		Trackers:    info.Trackers,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Cancelled while the engine was starting. The cancel already
			// removed the record, so tear down the fresh session and its
			// files.
			s.stopAbandoned(ctx, candidate.ID, true)
			s.logger.Info("admission abandoned, download cancelled mid-start",
				logging.Int64(logging.FieldRecordID, candidate.ID),
				logging.String(logging.FieldEventType, "admission_abandoned"),
				logging.String("pass_id", passID))
			return admitNextCandidate
		}
		// Slot taken or gate closed after the start. The record stays queued
		// for a later pass; keep its staged data.
		s.stopAbandoned(ctx, candidate.ID, false)
		attrs := append(logging.DecisionAttrs("admission", "deferred", services.Details(err).Message),
			logging.String("pass_id", passID),
			logging.Int64(logging.FieldRecordID, candidate.ID))
		s.logger.Info("admission deferred", logging.Args(attrs...)...)
		return admitStopPass
	}

	attrs := append(logging.DecisionAttrs("admission", "admitted", "slot available"),
		logging.String("pass_id", passID),
		logging.Int64(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldEventType, "transfer_started"),
		logging.String("name", record.DisplayName),
		logging.Int64("total_bytes", record.TotalBytes))
	s.logger.Info("download active", logging.Args(attrs...)...)

	if s.admitted != nil {
		s.admitted(record)
	}
	return admitOK
}

func (s *Scheduler) failCandidate(candidate *records.DownloadRecord, startErr error) {
	details := services.Details(startErr)
	message := details.Message
	if details.Cause != "" {
		message += ": " + details.Cause
	}
	updated, err := s.store.UpdateStatus(candidate.ID, records.StatusFailed, message)
	if err != nil {
		s.logger.Warn("failed download could not be marked",
			logging.Int64(logging.FieldRecordID, candidate.ID),
			logging.Error(err))
		return
	}
	logging.ErrorWithContext(s.logger, "download failed to start", "transfer_start_failed",
		logging.Int64(logging.FieldRecordID, candidate.ID),
		logging.String("name", candidate.DisplayName),
		logging.Error(startErr))
	if s.failed != nil {
		s.failed(updated, message)
	}
}

func (s *Scheduler) stopAbandoned(ctx context.Context, id int64, deleteFiles bool) {
	if err := s.engine.Stop(ctx, id, deleteFiles); err != nil {
		s.logger.Warn("abandoned session stop failed",
			logging.Int64(logging.FieldRecordID, id),
			logging.Error(err))
	}
}
