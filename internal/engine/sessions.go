package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"capstan/internal/logging"
	"capstan/internal/services"
)

// session pairs a live torrent with its storage and the counters the last
// progress sample left behind.
type session struct {
	torrent     *torrent.Torrent
	storage     storage.ClientImplCloser
	stagingPath string

	mu            sync.Mutex
	paused        bool
	lastSample    time.Time
	lastCompleted int64
	lastWritten   int64
	downloadRate  float64
	uploadRate    float64
}

func (a *Adapter) session(id int64, op string) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "engine", op,
			fmt.Sprintf("download %d has no session", id), nil)
	}
	return sess, nil
}

// Pause stops data exchange without dropping the session, so peers and
// metadata stay warm for Resume.
func (a *Adapter) Pause(ctx context.Context, id int64) error {
	sess, err := a.session(id, "pause")
	if err != nil {
		return err
	}
	sess.torrent.DisallowDataDownload()
	sess.torrent.DisallowDataUpload()
	sess.setPaused(true)
	a.logger.Info("transfer session paused",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "session_paused"))
	return nil
}

// Resume re-enables data exchange for a paused session.
func (a *Adapter) Resume(ctx context.Context, id int64) error {
	sess, err := a.session(id, "resume")
	if err != nil {
		return err
	}
	sess.torrent.AllowDataDownload()
	sess.torrent.AllowDataUpload()
	sess.torrent.DownloadAll()
	sess.setPaused(false)
	a.logger.Info("transfer session resumed",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "session_resumed"))
	return nil
}

// Progress samples the session's counters. ok=false means no session exists
// for the id.
func (a *Adapter) Progress(ctx context.Context, id int64) (Progress, bool, error) {
	a.mu.Lock()
	sess, ok := a.sessions[id]
	a.mu.Unlock()
	if !ok {
		return Progress{}, false, nil
	}
	return sess.sample(time.Now()), true, nil
}

// sample derives rates from byte-counter deltas since the previous call.
// The first sample for a session reports zero rates.
func (s *session) sample(now time.Time) Progress {
	stats := s.torrent.Stats()
	completed := s.torrent.BytesCompleted()
	total := s.torrent.Length()
	written := stats.BytesWrittenData.Int64()

	s.mu.Lock()
	if !s.lastSample.IsZero() {
		if elapsed := now.Sub(s.lastSample).Seconds(); elapsed > 0 {
			s.downloadRate = rateDelta(completed, s.lastCompleted, elapsed)
			s.uploadRate = rateDelta(written, s.lastWritten, elapsed)
		}
	}
	s.lastSample = now
	s.lastCompleted = completed
	s.lastWritten = written
	downloadRate := s.downloadRate
	uploadRate := s.uploadRate
	paused := s.paused
	s.mu.Unlock()

	if paused {
		downloadRate = 0
		uploadRate = 0
	}
	return Progress{
		TotalBytes:     total,
		CompletedBytes: completed,
		DownloadRate:   downloadRate,
		UploadRate:     uploadRate,
		Peers:          stats.ActivePeers,
		Seeds:          stats.ConnectedSeeders,
		Complete:       total > 0 && completed >= total,
	}
}

func (s *session) setPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	if paused {
		s.downloadRate = 0
		s.uploadRate = 0
	}
	s.mu.Unlock()
}

func rateDelta(current, previous int64, seconds float64) float64 {
	if current <= previous {
		return 0
	}
	return float64(current-previous) / seconds
}
