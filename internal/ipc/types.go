package ipc

import "capstan/internal/api"

// Download mirrors the HTTP API download DTO for IPC callers.
type Download = api.Download

// ComponentHealth describes readiness of one workflow component.
type ComponentHealth = api.ComponentHealth

// VolumeStatus reports one monitored volume.
type VolumeStatus = api.VolumeStatus

// HistoryEntry mirrors the HTTP API history DTO.
type HistoryEntry = api.HistoryEntry

// StopRequest stops download processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running      bool              `json:"running"`
	QueueActive  bool              `json:"queue_active"`
	Stats        map[string]int    `json:"stats"`
	LastError    string            `json:"last_error"`
	LastDownload *Download         `json:"last_download"`
	ImportQueue  int               `json:"import_queue"`
	Components   []ComponentHealth `json:"components"`
	Volumes      []VolumeStatus    `json:"volumes"`
	LockPath     string            `json:"lock_path"`
	SnapshotPath string            `json:"snapshot_path"`
	HistoryPath  string            `json:"history_path"`
	PID          int               `json:"pid"`
}

// DownloadCreateRequest submits a new source for download.
type DownloadCreateRequest struct {
	Source      string `json:"source"`
	Owner       string `json:"owner"`
	Destination string `json:"destination"`
}

// DownloadCreateResponse contains the queued record.
type DownloadCreateResponse struct {
	Download Download `json:"download"`
}

// DownloadListRequest filters the listing by status.
type DownloadListRequest struct {
	Statuses []string `json:"statuses"`
}

// DownloadListResponse contains download entries.
type DownloadListResponse struct {
	Downloads []Download `json:"downloads"`
}

// DownloadDescribeRequest fetches a single download by id.
type DownloadDescribeRequest struct {
	ID int64 `json:"id"`
}

// DownloadDescribeResponse contains a single download when found.
type DownloadDescribeResponse struct {
	Found    bool     `json:"found"`
	Download Download `json:"download"`
}

// DownloadPauseRequest suspends an active download.
type DownloadPauseRequest struct {
	ID int64 `json:"id"`
}

// DownloadPauseResponse carries the paused record.
type DownloadPauseResponse struct {
	Download Download `json:"download"`
}

// DownloadResumeRequest readmits a paused download.
type DownloadResumeRequest struct {
	ID int64 `json:"id"`
}

// DownloadResumeResponse carries the reactivated record.
type DownloadResumeResponse struct {
	Download Download `json:"download"`
}

// DownloadCancelRequest removes a download and optionally its files.
type DownloadCancelRequest struct {
	ID          int64 `json:"id"`
	DeleteFiles bool  `json:"delete_files"`
}

// DownloadCancelResponse reports whether a record was removed.
type DownloadCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// DownloadImportRequest queues a manual import for a completed download.
type DownloadImportRequest struct {
	ID int64 `json:"id"`
}

// DownloadImportResponse reports whether the import was queued.
type DownloadImportResponse struct {
	Queued bool `json:"queued"`
}

// VolumesRequest samples the monitored volumes.
type VolumesRequest struct{}

// VolumesResponse contains per-volume samples.
type VolumesResponse struct {
	Volumes []VolumeStatus `json:"volumes"`
}

// CleanupRequest sweeps staging directories. A positive OlderThanSeconds
// removes directories untouched for that long; Orphaned removes directories
// no record references.
type CleanupRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
	Orphaned         bool  `json:"orphaned"`
}

// CleanupResponse reports what the sweep removed.
type CleanupResponse struct {
	Configured bool     `json:"configured"`
	Scope      string   `json:"scope"`
	Removed    []string `json:"removed"`
	BytesFreed int64    `json:"bytes_freed"`
	Errors     []string `json:"errors"`
}

// HistoryListRequest fetches archived outcomes, newest first.
type HistoryListRequest struct {
	Limit    int      `json:"limit"`
	Outcomes []string `json:"outcomes"`
}

// HistoryListResponse contains archived outcomes.
type HistoryListResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// SnapshotHealthRequest fetches record snapshot diagnostics.
type SnapshotHealthRequest struct{}

// SnapshotHealthResponse reports snapshot health information.
type SnapshotHealthResponse struct {
	Path         string `json:"path"`
	Exists       bool   `json:"exists"`
	Readable     bool   `json:"readable"`
	BackupExists bool   `json:"backup_exists"`
	RecordCount  int    `json:"record_count"`
	SavedAt      string `json:"saved_at,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HistoryHealthRequest fetches archive database diagnostics.
type HistoryHealthRequest struct{}

// HistoryHealthResponse reports archive database health information.
type HistoryHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	TotalEntries     int64    `json:"total_entries"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error,omitempty"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// NotificationTestRequest triggers a notification test.
type NotificationTestRequest struct{}

// NotificationTestResponse reports notification test outcome.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
