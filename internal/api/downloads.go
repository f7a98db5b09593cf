package api

import (
	"errors"

	"capstan/internal/records"
	"capstan/internal/services"
)

// RecordReader abstracts record access needed for API queries. Both the live
// store and the read-only snapshot view satisfy it.
type RecordReader interface {
	Get(id int64) (*records.DownloadRecord, error)
	List(statuses ...records.Status) []*records.DownloadRecord
	Stats() records.Stats
}

// DownloadService exposes read-only record operations returning API DTOs.
type DownloadService struct {
	store RecordReader
}

// NewDownloadService constructs a DownloadService around the provided reader.
func NewDownloadService(store RecordReader) *DownloadService {
	if store == nil {
		return nil
	}
	return &DownloadService{store: store}
}

// List returns downloads filtered by status.
func (s *DownloadService) List(statuses ...records.Status) []Download {
	if s == nil || s.store == nil {
		return nil
	}
	return FromRecords(s.store.List(statuses...))
}

// Stats returns record summary counts keyed by status string.
func (s *DownloadService) Stats() map[string]int {
	if s == nil || s.store == nil {
		return nil
	}
	return StatsMap(s.store.Stats())
}

// Describe fetches a single download. A missing id yields (nil, nil) so
// transport layers can map it to their own not-found shape.
func (s *DownloadService) Describe(id int64) (*Download, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	record, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	dto := FromRecord(record)
	return &dto, nil
}
