package engine

import "context"

// Submission identifies one record's transfer and where its payload lands.
type Submission struct {
	RecordID    int64
	Source      string
	StagingPath string
}

// StartInfo reports what the engine learned once a session started.
type StartInfo struct {
	Name        string
	TotalBytes  int64
	Fingerprint string
	Trackers    []string
}

// Progress is a point-in-time sample of an active session. Rates are bytes
// per second derived from counter deltas between samples.
type Progress struct {
	TotalBytes     int64
	CompletedBytes int64
	DownloadRate   float64
	UploadRate     float64
	Peers          int
	Seeds          int
	Complete       bool
}

// Engine is the transfer boundary the lifecycle components talk to.
// Implementations must be safe for concurrent use; the scheduler, poller,
// and control surface all call in from separate goroutines.
//
// Progress reports ok=false when no session exists for the id, which is not
// an error: records demoted on restart legitimately have no session until
// the scheduler re-admits them. Stop is idempotent for the same reason.
type Engine interface {
	Validate(ctx context.Context, source string) error
	Start(ctx context.Context, sub Submission) (StartInfo, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Stop(ctx context.Context, id int64, deleteFiles bool) error
	Progress(ctx context.Context, id int64) (Progress, bool, error)
	Shutdown(ctx context.Context) error
}
