package api

import (
	"time"

	"capstan/internal/history"
	"capstan/internal/records"
	"capstan/internal/volumes"
	"capstan/internal/workflow"
)

// FromRecord converts a download record to its API representation.
func FromRecord(record *records.DownloadRecord) Download {
	if record == nil {
		return Download{}
	}

	dto := Download{
		ID:             record.ID,
		Source:         record.Source,
		Owner:          record.Owner,
		DisplayName:    record.DisplayName,
		Status:         string(record.Status),
		TotalBytes:     record.TotalBytes,
		CompletedBytes: record.CompletedBytes,
		Percent:        record.Percent,
		DownloadRate:   record.DownloadRate,
		UploadRate:     record.UploadRate,
		Peers:          record.Peers,
		Seeds:          record.Seeds,
		StagingPath:    record.StagingPath,
		DestinationID:  record.DestinationID,
		ErrorMessage:   record.ErrorMessage,
		Fingerprint:    record.Fingerprint,
		CreatedAt:      FormatTime(record.CreatedAt),
	}
	if record.ETASeconds != nil {
		v := *record.ETASeconds
		dto.ETASeconds = &v
	}
	if record.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*record.CompletedAt)
	}
	if record.ImportedAt != nil {
		dto.ImportedAt = FormatTime(*record.ImportedAt)
	}
	if len(record.Trackers) > 0 {
		dto.Trackers = append([]string(nil), record.Trackers...)
	}
	return dto
}

// FromRecords converts a slice of download records into API DTOs.
func FromRecords(list []*records.DownloadRecord) []Download {
	if len(list) == 0 {
		return nil
	}
	out := make([]Download, 0, len(list))
	for _, record := range list {
		out = append(out, FromRecord(record))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueActive: summary.QueueActive,
		Stats:       StatsMap(summary.Stats),
		ImportQueue: summary.ImportQueue,
		Components:  FromComponentHealth(summary.Components),
		Volumes:     FromVolumeStatuses(summary.Volumes),
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastRecord != nil {
		last := FromRecord(summary.LastRecord)
		wf.LastDownload = &last
	}
	return wf
}

// StatsMap produces a string-keyed representation of record stats.
func StatsMap(stats records.Stats) map[string]int {
	return map[string]int{
		"total":                         stats.Total,
		string(records.StatusQueued):    stats.Queued,
		string(records.StatusActive):    stats.Active,
		string(records.StatusPaused):    stats.Paused,
		string(records.StatusCompleted): stats.Completed,
		string(records.StatusFailed):    stats.Failed,
		string(records.StatusImporting): stats.Importing,
		string(records.StatusImported):  stats.Imported,
	}
}

// FromComponentHealth converts component readiness records.
func FromComponentHealth(health []workflow.ComponentHealth) []ComponentHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]ComponentHealth, 0, len(health))
	for _, h := range health {
		out = append(out, ComponentHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromVolumeStatuses converts monitored volume samples.
func FromVolumeStatuses(statuses []volumes.VolumeStatus) []VolumeStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]VolumeStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, VolumeStatus{
			Path:       status.Path,
			TotalBytes: status.TotalBytes,
			FreeBytes:  status.FreeBytes,
			Level:      string(status.Level),
			Primary:    status.Primary,
		})
	}
	return out
}

// FromHistoryEntry converts an archived outcome row.
func FromHistoryEntry(entry history.Entry) HistoryEntry {
	return HistoryEntry{
		ID:           entry.ID,
		RecordID:     entry.RecordID,
		Source:       entry.Source,
		DisplayName:  entry.DisplayName,
		Owner:        entry.Owner,
		Outcome:      string(entry.Outcome),
		TotalBytes:   entry.TotalBytes,
		Destination:  entry.Destination,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    FormatTime(entry.CreatedAt),
		FinishedAt:   FormatTime(entry.FinishedAt),
	}
}

// FromHistoryEntries converts a slice of archived outcome rows.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
