package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Download describes a download record in a transport-friendly format.
type Download struct {
	ID             int64    `json:"id"`
	Source         string   `json:"source"`
	Owner          string   `json:"owner,omitempty"`
	DisplayName    string   `json:"display_name"`
	Status         string   `json:"status"`
	TotalBytes     int64    `json:"total_bytes"`
	CompletedBytes int64    `json:"completed_bytes"`
	Percent        float64  `json:"percent"`
	DownloadRate   float64  `json:"download_rate"`
	UploadRate     float64  `json:"upload_rate"`
	Peers          int      `json:"peers"`
	Seeds          int      `json:"seeds"`
	ETASeconds     *int64   `json:"eta_seconds,omitempty"`
	StagingPath    string   `json:"staging_path,omitempty"`
	DestinationID  string   `json:"destination_id,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	CompletedAt    string   `json:"completed_at,omitempty"`
	ImportedAt     string   `json:"imported_at,omitempty"`
	Fingerprint    string   `json:"fingerprint,omitempty"`
	Trackers       []string `json:"trackers,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running      bool              `json:"running"`
	QueueActive  bool              `json:"queue_active"`
	Stats        map[string]int    `json:"stats"`
	LastError    string            `json:"last_error,omitempty"`
	LastDownload *Download         `json:"last_download,omitempty"`
	ImportQueue  int               `json:"import_queue"`
	Components   []ComponentHealth `json:"components"`
	Volumes      []VolumeStatus    `json:"volumes,omitempty"`
}

// ComponentHealth mirrors readiness reporting for workflow components.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// VolumeStatus reports free space for one monitored mount.
type VolumeStatus struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	Level      string `json:"level"`
	Primary    bool   `json:"primary"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	SnapshotPath string         `json:"snapshot_path"`
	HistoryPath  string         `json:"history_path"`
	LockFilePath string         `json:"lock_file_path"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// HistoryEntry describes one archived download outcome.
type HistoryEntry struct {
	ID           int64  `json:"id"`
	RecordID     int64  `json:"record_id"`
	Source       string `json:"source"`
	DisplayName  string `json:"display_name"`
	Owner        string `json:"owner,omitempty"`
	Outcome      string `json:"outcome"`
	TotalBytes   int64  `json:"total_bytes"`
	Destination  string `json:"destination,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
}

// DownloadListResponse wraps a collection of downloads for API responses.
type DownloadListResponse struct {
	Downloads []Download `json:"downloads"`
}

// DownloadResponse wraps a single download.
type DownloadResponse struct {
	Download Download `json:"download"`
}

// StatsResponse provides a normalized record stats payload.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// VolumesResponse wraps monitored volume samples.
type VolumesResponse struct {
	Volumes []VolumeStatus `json:"volumes"`
}

// LogEvent is the transport form of one structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	RecordID  int64             `json:"record_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   []DetailField     `json:"details,omitempty"`
}

// DetailField is one label/value pair attached to a log event.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogStreamResponse carries a page of log events plus the next cursor.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
