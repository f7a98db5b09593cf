package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"capstan/internal/logging"
	"capstan/internal/services"
)

const (
	snapshotFileName = "downloads.json"
	snapshotVersion  = 1
	backupSuffix     = ".bak"
	tempSuffix       = ".tmp"
)

// snapshotEnvelope is the on-disk form of the record collection. Records are
// persisted in submission order.
type snapshotEnvelope struct {
	Version int               `json:"version"`
	SavedAt time.Time         `json:"saved_at"`
	NextID  int64             `json:"next_id"`
	Records []*DownloadRecord `json:"records"`
}

// SnapshotPath returns the live snapshot location inside a state directory.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, snapshotFileName)
}

// ReadSnapshot loads the record collection from a snapshot file without
// opening a Store, applying the same live-then-backup fallback. Records come
// back exactly as persisted; read-only CLI surfaces use this while the
// daemon is down.
func ReadSnapshot(path string) ([]*DownloadRecord, error) {
	envelope, err := decodeSnapshot(path)
	if err != nil {
		backup, backupErr := decodeSnapshot(path + backupSuffix)
		if backupErr != nil {
			if errors.Is(err, fs.ErrNotExist) && errors.Is(backupErr, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		envelope = backup
	}
	out := make([]*DownloadRecord, 0, len(envelope.Records))
	for _, record := range envelope.Records {
		if record == nil || record.ID == 0 {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func decodeSnapshot(path string) (snapshotEnvelope, error) {
	var envelope snapshotEnvelope
	data, err := os.ReadFile(path)
	if err != nil {
		return envelope, err
	}
	if len(data) == 0 {
		return envelope, fmt.Errorf("snapshot %s: empty file", filepath.Base(path))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope, fmt.Errorf("parse snapshot: %w", err)
	}
	return envelope, nil
}

// saveLocked serializes the collection and replaces the live snapshot
// atomically: encode to a temp file, rotate the previous snapshot to the
// one-generation backup, rename the temp file over the live path. Callers
// hold s.mu.
func (s *Store) saveLocked() error {
	envelope := snapshotEnvelope{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		NextID:  s.nextID,
		Records: s.orderedLocked(),
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmpPath := s.path + tempSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(s.path, s.path+backupSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Remove(tmpPath)
		return fmt.Errorf("rotate snapshot backup: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// persistLocked writes the snapshot and downgrades failures to log entries;
// the in-memory collection stays authoritative until the next successful
// write. Callers hold s.mu.
func (s *Store) persistLocked() {
	if err := s.saveLocked(); err != nil {
		s.logger.Error("snapshot write failed",
			logging.String(logging.FieldEventType, "snapshot_write_failed"),
			logging.Error(services.Wrap(services.ErrPersistence, "records", "save snapshot", "", err)),
			logging.String(logging.FieldErrorHint, "check that the log directory is writable"),
			logging.String(logging.FieldImpact, "latest record changes exist only in memory"))
	}
}

// load reads the snapshot into memory, recovering from the backup generation
// when the live file is missing or corrupt, then applies restart demotions.
// Both generations unusable means a fresh start; records cannot be
// reconstructed from anywhere else.
func (s *Store) load() {
	envelope, err := decodeSnapshot(s.path)
	if err != nil {
		backup, backupErr := decodeSnapshot(s.path + backupSuffix)
		if backupErr != nil {
			if !errors.Is(err, fs.ErrNotExist) || !errors.Is(backupErr, fs.ErrNotExist) {
				s.logger.Warn("snapshot unusable, starting with an empty collection",
					logging.String(logging.FieldEventType, "snapshot_load_failed"),
					logging.Error(err),
					logging.String(logging.FieldImpact, "previously tracked downloads are no longer listed"))
			}
			return
		}
		envelope = backup
		s.logger.Warn("recovered record collection from backup snapshot",
			logging.String(logging.FieldEventType, "snapshot_recovered_from_backup"),
			logging.Error(err))
	}

	demotedActive := 0
	demotedImporting := 0
	maxID := int64(0)
	s.records = make(map[int64]*DownloadRecord, len(envelope.Records))
	for _, record := range envelope.Records {
		if record == nil || record.ID == 0 {
			continue
		}
		if _, known := statusSet[record.Status]; !known {
			record.SetFailed(fmt.Sprintf("unrecognized status %q in snapshot", record.Status))
		}
		switch record.Status {
		case StatusActive:
			record.Status = StatusQueued
			record.DownloadRate = 0
			record.UploadRate = 0
			record.Peers = 0
			record.Seeds = 0
			record.ETASeconds = nil
			demotedActive++
		case StatusImporting:
			record.Status = StatusCompleted
			demotedImporting++
		}
		s.records[record.ID] = record
		if record.ID > maxID {
			maxID = record.ID
		}
	}
	s.nextID = envelope.NextID
	if s.nextID <= maxID {
		s.nextID = maxID + 1
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	if demotedActive > 0 || demotedImporting > 0 {
		s.logger.Info("demoted records from interrupted run",
			logging.String(logging.FieldEventType, "records_demoted"),
			logging.Int("active_to_queued", demotedActive),
			logging.Int("importing_to_completed", demotedImporting))
		s.persistLocked()
	}
}

// Health inspects the snapshot files on disk. It takes the collection lock
// so the live file is never observed mid-rotation.
func (s *Store) Health() SnapshotHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	health := SnapshotHealth{Path: s.path}
	if _, err := os.Stat(s.path + backupSuffix); err == nil {
		health.BackupExists = true
	}
	if _, err := os.Stat(s.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			health.Error = err.Error()
		}
		return health
	}
	health.Exists = true
	envelope, err := decodeSnapshot(s.path)
	if err != nil {
		health.Error = err.Error()
		return health
	}
	health.Readable = true
	health.RecordCount = len(envelope.Records)
	health.SavedAt = envelope.SavedAt
	return health
}
