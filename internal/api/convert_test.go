package api_test

import (
	"testing"
	"time"

	"capstan/internal/api"
	"capstan/internal/history"
	"capstan/internal/records"
	"capstan/internal/volumes"
	"capstan/internal/workflow"
)

func TestFromRecordMapsFields(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	completed := created.Add(90 * time.Minute)
	eta := int64(42)

	record := &records.DownloadRecord{
		ID:             7,
		Source:         "magnet:?xt=urn:btih:abc",
		Owner:          "kim",
		DisplayName:    "Glacier Timelapse",
		Status:         records.StatusCompleted,
		TotalBytes:     2048,
		CompletedBytes: 2048,
		Percent:        100,
		DownloadRate:   512.5,
		UploadRate:     128.25,
		Peers:          4,
		Seeds:          9,
		ETASeconds:     &eta,
		StagingPath:    "/staging/7",
		DestinationID:  "video",
		ErrorMessage:   "",
		CreatedAt:      created,
		CompletedAt:    &completed,
		Fingerprint:    "deadbeef",
		Trackers:       []string{"udp://tracker.example:6969"},
	}

	dto := api.FromRecord(record)
	if dto.ID != 7 || dto.DisplayName != "Glacier Timelapse" {
		t.Fatalf("unexpected identity fields: %+v", dto)
	}
	if dto.Status != "completed" {
		t.Fatalf("expected status string, got %q", dto.Status)
	}
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("unexpected created_at %q", dto.CreatedAt)
	}
	if dto.CompletedAt == "" || dto.ImportedAt != "" {
		t.Fatalf("expected completed_at set and imported_at empty: %+v", dto)
	}
	if dto.ETASeconds == nil || *dto.ETASeconds != 42 {
		t.Fatalf("expected eta 42, got %v", dto.ETASeconds)
	}
	if len(dto.Trackers) != 1 || dto.Trackers[0] != "udp://tracker.example:6969" {
		t.Fatalf("unexpected trackers %v", dto.Trackers)
	}

	dto.Trackers[0] = "mutated"
	if record.Trackers[0] != "udp://tracker.example:6969" {
		t.Fatal("converter must copy tracker slice")
	}
}

func TestFromRecordNil(t *testing.T) {
	dto := api.FromRecord(nil)
	if dto.ID != 0 || dto.Status != "" {
		t.Fatalf("expected zero DTO, got %+v", dto)
	}
}

func TestFromStatusSummary(t *testing.T) {
	record := &records.DownloadRecord{ID: 3, DisplayName: "Reef Survey", Status: records.StatusActive, CreatedAt: time.Now().UTC()}
	summary := workflow.StatusSummary{
		Running:     true,
		QueueActive: true,
		LastError:   "engine start: timeout",
		LastRecord:  record,
		Stats:       records.Stats{Total: 5, Queued: 2, Active: 1, Imported: 2},
		ImportQueue: 1,
		Components: []workflow.ComponentHealth{
			workflow.Healthy("records"),
			workflow.Unhealthy("storage", "free space below critical threshold"),
		},
		Volumes: []volumes.VolumeStatus{
			{Path: "/staging", TotalBytes: 100, FreeBytes: 3, Level: volumes.LevelCritical, Primary: true},
		},
	}

	dto := api.FromStatusSummary(summary)
	if !dto.Running || !dto.QueueActive {
		t.Fatalf("expected running summary: %+v", dto)
	}
	if dto.Stats["total"] != 5 || dto.Stats["queued"] != 2 || dto.Stats["imported"] != 2 {
		t.Fatalf("unexpected stats map %v", dto.Stats)
	}
	if dto.LastError != "engine start: timeout" {
		t.Fatalf("unexpected last error %q", dto.LastError)
	}
	if dto.LastDownload == nil || dto.LastDownload.ID != 3 {
		t.Fatalf("expected last download 3, got %+v", dto.LastDownload)
	}
	if dto.ImportQueue != 1 {
		t.Fatalf("unexpected import queue depth %d", dto.ImportQueue)
	}
	if len(dto.Components) != 2 || dto.Components[0].Name != "records" || !dto.Components[0].Ready {
		t.Fatalf("unexpected components %+v", dto.Components)
	}
	if dto.Components[1].Detail == "" {
		t.Fatal("expected detail on unhealthy component")
	}
	if len(dto.Volumes) != 1 || dto.Volumes[0].Level != "critical" || !dto.Volumes[0].Primary {
		t.Fatalf("unexpected volumes %+v", dto.Volumes)
	}
}

func TestFromHistoryEntry(t *testing.T) {
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := history.Entry{
		ID:          11,
		RecordID:    7,
		Source:      "magnet:?xt=urn:btih:abc",
		DisplayName: "Glacier Timelapse",
		Outcome:     history.OutcomeImported,
		TotalBytes:  2048,
		Destination: "/library/video/Glacier Timelapse",
		FinishedAt:  finished,
	}
	dto := api.FromHistoryEntry(entry)
	if dto.Outcome != "imported" || dto.RecordID != 7 {
		t.Fatalf("unexpected history DTO %+v", dto)
	}
	if dto.FinishedAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected finished_at %q", dto.FinishedAt)
	}
	if dto.CreatedAt != "" {
		t.Fatalf("zero created_at must stay empty, got %q", dto.CreatedAt)
	}
}

func TestFormatTimeZero(t *testing.T) {
	if got := api.FormatTime(time.Time{}); got != "" {
		t.Fatalf("expected empty string for zero time, got %q", got)
	}
}
