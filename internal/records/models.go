package records

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a download record.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusImporting Status = "importing"
	StatusImported  Status = "imported"
)

var allStatuses = []Status{
	StatusQueued,
	StatusActive,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusImporting,
	StatusImported,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusFailed:   {},
	StatusImported: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further lifecycle work applies to the status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// HasSession reports whether a record in this status holds an engine session.
func (s Status) HasSession() bool {
	return s == StatusActive || s == StatusPaused
}

// DownloadRecord tracks one submitted transfer job from submission through
// optional catalog import. ID, Source, Owner, StagingPath, and CreatedAt are
// immutable after creation.
type DownloadRecord struct {
	ID             int64      `json:"id"`
	Source         string     `json:"source"`
	Owner          string     `json:"owner"`
	DisplayName    string     `json:"display_name"`
	Status         Status     `json:"status"`
	TotalBytes     int64      `json:"total_bytes"`
	CompletedBytes int64      `json:"completed_bytes"`
	Percent        float64    `json:"percent"`
	DownloadRate   float64    `json:"download_rate"`
	UploadRate     float64    `json:"upload_rate"`
	Peers          int        `json:"peers"`
	Seeds          int        `json:"seeds"`
	ETASeconds     *int64     `json:"eta_seconds"`
	StagingPath    string     `json:"staging_path"`
	DestinationID  string     `json:"destination_id"`
	ErrorMessage   string     `json:"error_message"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ImportedAt     *time.Time `json:"imported_at"`
	Fingerprint    string     `json:"fingerprint"`
	Trackers       []string   `json:"trackers"`
}

// ProgressUpdate carries one engine progress sample for an active record.
type ProgressUpdate struct {
	TotalBytes     int64
	CompletedBytes int64
	Percent        float64
	DownloadRate   float64
	UploadRate     float64
	Peers          int
	Seeds          int
	ETASeconds     *int64
}

// StartInfo captures what the engine reports once a transfer session starts.
// Zero fields leave the corresponding record fields untouched.
type StartInfo struct {
	Name        string
	TotalBytes  int64
	Fingerprint string
	Trackers    []string
}

// Clone returns a deep copy safe to share outside the store lock.
func (r *DownloadRecord) Clone() *DownloadRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.ETASeconds != nil {
		v := *r.ETASeconds
		cp.ETASeconds = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		cp.CompletedAt = &v
	}
	if r.ImportedAt != nil {
		v := *r.ImportedAt
		cp.ImportedAt = &v
	}
	if r.Trackers != nil {
		cp.Trackers = append([]string(nil), r.Trackers...)
	}
	return &cp
}

// SetProgress folds one poll sample into the record's transfer metrics.
// A zero TotalBytes keeps the previously known size.
func (r *DownloadRecord) SetProgress(update ProgressUpdate) {
	if update.TotalBytes > 0 {
		r.TotalBytes = update.TotalBytes
	}
	r.CompletedBytes = update.CompletedBytes
	r.Percent = clampPercent(update.Percent)
	r.DownloadRate = update.DownloadRate
	r.UploadRate = update.UploadRate
	r.Peers = update.Peers
	r.Seeds = update.Seeds
	if update.ETASeconds != nil {
		v := *update.ETASeconds
		r.ETASeconds = &v
	} else {
		r.ETASeconds = nil
	}
}

// SetFailed marks the record failed with the given diagnostic and clears
// session-derived metrics.
func (r *DownloadRecord) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.DownloadRate = 0
	r.UploadRate = 0
	r.Peers = 0
	r.Seeds = 0
	r.ETASeconds = nil
}

func clampPercent(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	}
	return value
}

// Stats aggregates record counts per lifecycle status.
type Stats struct {
	Total     int
	Queued    int
	Active    int
	Paused    int
	Completed int
	Failed    int
	Importing int
	Imported  int
}

// SnapshotHealth captures diagnostic information about the snapshot file.
type SnapshotHealth struct {
	Path         string
	Exists       bool
	Readable     bool
	BackupExists bool
	RecordCount  int
	SavedAt      time.Time
	Error        string
}
