package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"capstan/internal/config"
	"capstan/internal/logging"
	"capstan/internal/services"
)

// Adapter implements Engine on top of an embedded anacrolix torrent client.
// Each started record gets its own file storage rooted at the record's
// staging path, so payloads never mix and Stop can reclaim one record's disk
// without touching its neighbours.
type Adapter struct {
	logger         *slog.Logger
	client         *torrent.Client
	resolveTimeout time.Duration

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewAdapter builds the torrent client from configuration and returns a
// ready adapter. The client binds its listen port immediately.
func NewAdapter(cfg *config.Config, logger *slog.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "configuration is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	clientCfg := torrent.NewDefaultClientConfig()
	clientCfg.DataDir = cfg.Paths.StagingDir
	clientCfg.ListenPort = cfg.Engine.ListenPort
	clientCfg.NoDHT = !cfg.Engine.DHT
	clientCfg.Seed = cfg.Engine.Seed
	clientCfg.DownloadRateLimiter = newRateLimiter(cfg.Engine.DownloadRateLimitKiB)
	clientCfg.UploadRateLimiter = newRateLimiter(cfg.Engine.UploadRateLimitKiB)
	if cfg.Engine.MaxConnections > 0 {
		clientCfg.EstablishedConnsPerTorrent = cfg.Engine.MaxConnections
	}

	client, err := torrent.NewClient(clientCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrEngine, "engine", "new", "start torrent client", err)
	}

	resolveTimeout := time.Duration(cfg.Engine.ResolveTimeout) * time.Second
	if resolveTimeout <= 0 {
		resolveTimeout = 2 * time.Minute
	}

	return &Adapter{
		logger:         logging.ComponentLogger(logger, "engine", logging.ComponentOverrides(cfg)),
		client:         client,
		resolveTimeout: resolveTimeout,
		sessions:       make(map[int64]*session),
	}, nil
}

// newRateLimiter converts a KiB/s setting into a client-wide limiter. Zero
// or negative disables the limit. The burst floor keeps single chunk reads
// from starving under small limits.
func newRateLimiter(kibPerSecond int) *rate.Limiter {
	if kibPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	bytesPerSecond := kibPerSecond * 1024
	burst := bytesPerSecond
	if burst < 1<<18 {
		burst = 1 << 18
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

func isMagnet(source string) bool {
	return strings.HasPrefix(strings.ToLower(source), "magnet:")
}

func isTorrentFile(source string) bool {
	return strings.EqualFold(filepath.Ext(source), ".torrent")
}

// Validate checks that a source is a well-formed magnet link or a readable
// .torrent descriptor without registering anything with the client.
func (a *Adapter) Validate(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	switch {
	case isMagnet(source):
		if _, err := metainfo.ParseMagnetUri(source); err != nil {
			return services.Wrap(services.ErrValidation, "engine", "validate", "malformed magnet link", err)
		}
		return nil
	case isTorrentFile(source):
		mi, err := metainfo.LoadFromFile(source)
		if err != nil {
			return services.Wrap(services.ErrValidation, "engine", "validate", "unreadable torrent descriptor", err)
		}
		if _, err := mi.UnmarshalInfo(); err != nil {
			return services.Wrap(services.ErrValidation, "engine", "validate", "malformed torrent descriptor", err)
		}
		return nil
	default:
		return services.Wrap(services.ErrValidation, "engine", "validate", "source must be a magnet link or a .torrent file", nil)
	}
}

func buildSpec(source string) (*torrent.TorrentSpec, error) {
	switch {
	case isMagnet(source):
		spec, err := torrent.TorrentSpecFromMagnetUri(source)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "engine", "start", "malformed magnet link", err)
		}
		return spec, nil
	case isTorrentFile(source):
		mi, err := metainfo.LoadFromFile(source)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "engine", "start", "unreadable torrent descriptor", err)
		}
		spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "engine", "start", "malformed torrent descriptor", err)
		}
		return spec, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "engine", "start", "source must be a magnet link or a .torrent file", nil)
	}
}

// Start registers the transfer, waits for metadata to resolve, and begins
// downloading into the submission's staging path. Magnet metadata resolution
// is bounded by the configured resolve timeout.
func (a *Adapter) Start(ctx context.Context, sub Submission) (StartInfo, error) {
	source := strings.TrimSpace(sub.Source)
	spec, err := buildSpec(source)
	if err != nil {
		return StartInfo{}, err
	}
	if strings.TrimSpace(sub.StagingPath) == "" {
		return StartInfo{}, services.Wrap(services.ErrValidation, "engine", "start", "staging path is required", nil)
	}

	a.mu.Lock()
	_, exists := a.sessions[sub.RecordID]
	a.mu.Unlock()
	if exists {
		return StartInfo{}, services.Wrap(services.ErrConflict, "engine", "start",
			fmt.Sprintf("download %d already has a session", sub.RecordID), nil)
	}

	if err := os.MkdirAll(sub.StagingPath, 0o755); err != nil {
		return StartInfo{}, services.Wrap(services.ErrEngine, "engine", "start", "create staging directory", err)
	}

	// Piece completion stays in memory: a restart re-admits the record from
	// scratch, and the staging directory must hold payload files only.
	stor := storage.NewFileOpts(storage.NewFileClientOpts{
		ClientBaseDir:   sub.StagingPath,
		PieceCompletion: storage.NewMapPieceCompletion(),
	})
	spec.Storage = stor

	t, isNew, err := a.client.AddTorrentSpec(spec)
	if err != nil {
		_ = stor.Close()
		return StartInfo{}, services.Wrap(services.ErrEngine, "engine", "start", "register transfer", err)
	}
	if !isNew {
		// Another record already owns this torrent. Closing our unused
		// storage is safe; dropping the shared torrent is not.
		_ = stor.Close()
		return StartInfo{}, services.Wrap(services.ErrConflict, "engine", "start",
			"source is already being downloaded", nil)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, a.resolveTimeout)
	defer cancel()
	select {
	case <-t.GotInfo():
	case <-resolveCtx.Done():
		t.Drop()
		_ = stor.Close()
		return StartInfo{}, services.Wrap(services.ErrEngine, "engine", "start", "resolve metadata", resolveCtx.Err())
	}

	t.DownloadAll()

	sess := &session{
		torrent:     t,
		storage:     stor,
		stagingPath: sub.StagingPath,
	}
	a.mu.Lock()
	if _, dup := a.sessions[sub.RecordID]; dup {
		a.mu.Unlock()
		t.Drop()
		_ = stor.Close()
		return StartInfo{}, services.Wrap(services.ErrConflict, "engine", "start",
			fmt.Sprintf("download %d already has a session", sub.RecordID), nil)
	}
	a.sessions[sub.RecordID] = sess
	a.mu.Unlock()

	info := StartInfo{
		Name:        t.Name(),
		TotalBytes:  t.Length(),
		Fingerprint: t.InfoHash().HexString(),
		Trackers:    flattenTrackers(spec.Trackers),
	}
	a.logger.Info("transfer session started",
		logging.Int64(logging.FieldRecordID, sub.RecordID),
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("name", info.Name),
		logging.Int64("total_bytes", info.TotalBytes),
		logging.String("fingerprint", info.Fingerprint))
	return info, nil
}

func flattenTrackers(tiers [][]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tier := range tiers {
		for _, tracker := range tier {
			tracker = strings.TrimSpace(tracker)
			if tracker == "" {
				continue
			}
			if _, dup := seen[tracker]; dup {
				continue
			}
			seen[tracker] = struct{}{}
			out = append(out, tracker)
		}
	}
	return out
}

// Stop drops the session and optionally deletes the staged payload. Unknown
// ids are a no-op so cancellation stays idempotent.
func (a *Adapter) Stop(ctx context.Context, id int64, deleteFiles bool) error {
	a.mu.Lock()
	sess, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	sess.torrent.Drop()
	if err := sess.storage.Close(); err != nil {
		a.logger.Warn("session storage close failed",
			logging.Int64(logging.FieldRecordID, id),
			logging.Error(err))
	}
	if deleteFiles && strings.TrimSpace(sess.stagingPath) != "" {
		if err := os.RemoveAll(sess.stagingPath); err != nil {
			return services.Wrap(services.ErrEngine, "engine", "stop", "remove staged files", err)
		}
	}

	a.logger.Info("transfer session stopped",
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, "session_stopped"),
		logging.Bool("deleted_files", deleteFiles))
	return nil
}

// Shutdown drops every session and closes the torrent client.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[int64]*session)
	a.mu.Unlock()

	for _, sess := range sessions {
		sess.torrent.Drop()
		_ = sess.storage.Close()
	}
	a.client.Close()

	a.logger.Info("engine shut down",
		logging.String(logging.FieldEventType, "engine_shutdown"),
		logging.Int("dropped_sessions", len(sessions)))
	return nil
}
