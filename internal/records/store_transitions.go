package records

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"capstan/internal/logging"
	"capstan/internal/services"
)

// allowedTransitions encodes the forward lifecycle graph. Any status may
// additionally fail, and a status may always be restated with a fresh
// diagnostic. Activation is absent on purpose: transitions into active go
// through Activate so the concurrency limit and storage gate are enforced in
// one place.
var allowedTransitions = map[Status][]Status{
	StatusQueued:    {StatusFailed},
	StatusActive:    {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:    {StatusFailed},
	StatusCompleted: {StatusImporting, StatusFailed},
	StatusImporting: {StatusImported, StatusCompleted, StatusFailed},
	StatusFailed:    {},
	StatusImported:  {},
}

func transitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a record along the lifecycle graph and persists the
// collection. The error message replaces the record's diagnostic; pass an
// empty string to clear it.
func (s *Store) UpdateStatus(id int64, status Status, errorMessage string) (*DownloadRecord, error) {
	if _, ok := statusSet[status]; !ok {
		return nil, services.Wrap(services.ErrValidation, "records", "update status", fmt.Sprintf("unknown status %q", status), nil)
	}
	if status == StatusActive {
		return nil, services.Wrap(services.ErrValidation, "records", "update status", "activation must go through Activate", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "records", "update status", fmt.Sprintf("download %d", id), nil)
	}
	if !transitionAllowed(record.Status, status) {
		return nil, services.Wrap(services.ErrConflict, "records", "update status",
			fmt.Sprintf("download %d cannot move from %s to %s", id, record.Status, status), nil)
	}

	now := time.Now().UTC()
	message := strings.TrimSpace(errorMessage)
	switch status {
	case StatusFailed:
		record.SetFailed(message)
	case StatusCompleted:
		record.Status = status
		record.ErrorMessage = message
		if record.CompletedAt == nil {
			record.CompletedAt = &now
		}
	case StatusImported:
		record.Status = status
		record.ErrorMessage = message
		if record.ImportedAt == nil {
			record.ImportedAt = &now
		}
	default:
		record.Status = status
		record.ErrorMessage = message
	}
	s.persistLocked()
	return record.Clone(), nil
}

// Activate admits a queued or paused record into active status, enforcing
// the concurrency limit and the storage gate under the collection lock.
// Session details the engine reported at start are folded into the record.
func (s *Store) Activate(id int64, info StartInfo) (*DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "records", "activate", fmt.Sprintf("download %d", id), nil)
	}
	if record.Status != StatusQueued && record.Status != StatusPaused {
		return nil, services.Wrap(services.ErrConflict, "records", "activate",
			fmt.Sprintf("download %d is %s", id, record.Status), nil)
	}
	if s.gate != nil && s.gate.IsCritical() {
		return nil, services.Wrap(services.ErrConflict, "records", "activate", "storage is critical", nil)
	}
	if s.maxActive > 0 && s.activeCountLocked() >= s.maxActive {
		return nil, services.Wrap(services.ErrConflict, "records", "activate",
			fmt.Sprintf("active limit %d reached", s.maxActive), nil)
	}

	record.Status = StatusActive
	record.ErrorMessage = ""
	if name := strings.TrimSpace(info.Name); name != "" {
		record.DisplayName = name
	}
	if info.TotalBytes > 0 {
		record.TotalBytes = info.TotalBytes
	}
	if fingerprint := strings.TrimSpace(info.Fingerprint); fingerprint != "" {
		record.Fingerprint = fingerprint
	}
	if len(info.Trackers) > 0 {
		record.Trackers = append([]string(nil), info.Trackers...)
	}
	s.persistLocked()
	return record.Clone(), nil
}

// ApplyProgress folds poll samples into their records under one lock
// acquisition. Records that are no longer active are skipped. A sample at or
// above 100 percent completes the record; newly completed ids are returned
// in ascending order so the caller can hand them to the import pipeline.
func (s *Store) ApplyProgress(samples map[int64]ProgressUpdate) []int64 {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []int64
	changed := false
	for id, sample := range samples {
		record, ok := s.records[id]
		if !ok || record.Status != StatusActive {
			continue
		}
		record.SetProgress(sample)
		changed = true
		if record.Percent >= 100 {
			record.Status = StatusCompleted
			now := time.Now().UTC()
			if record.CompletedAt == nil {
				record.CompletedAt = &now
			}
			record.DownloadRate = 0
			record.ETASeconds = nil
			completed = append(completed, id)
		}
	}
	if changed {
		s.persistLocked()
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i] < completed[j] })
	return completed
}

// Cancel removes a record and stops any engine activity it held. Unknown
// ids report NotFound without mutating anything, so repeated cancels are
// safe. The record leaves the collection before the engine stop so a
// concurrent admission pass cannot resurrect it; a pass whose start raced
// this removal finds the record gone at Activate time and tears its session
// down itself.
func (s *Store) Cancel(ctx context.Context, id int64, deleteFiles bool) error {
	s.mu.Lock()
	record, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return services.Wrap(services.ErrNotFound, "records", "cancel", fmt.Sprintf("download %d", id), nil)
	}
	hadSession := record.Status.HasSession()
	stagingPath := record.StagingPath
	delete(s.records, id)
	s.persistLocked()
	s.mu.Unlock()

	if hadSession && s.engine != nil {
		if err := s.engine.Stop(ctx, id, deleteFiles); err != nil {
			s.logger.Warn("engine stop during cancel failed",
				logging.Int64(logging.FieldRecordID, id),
				logging.String(logging.FieldEventType, "cancel_engine_stop_failed"),
				logging.Error(err))
		}
	}
	if deleteFiles && stagingPath != "" {
		if err := os.RemoveAll(stagingPath); err != nil {
			s.logger.Warn("staging cleanup during cancel failed",
				logging.Int64(logging.FieldRecordID, id),
				logging.String(logging.FieldEventType, "cancel_staging_cleanup_failed"),
				logging.Error(err))
		}
	}
	s.logger.Info("download cancelled",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "download_cancelled"),
		logging.Bool("delete_files", deleteFiles))
	return nil
}
