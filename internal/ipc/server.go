package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"capstan/internal/api"
	"capstan/internal/daemon"
	"capstan/internal/history"
	"capstan/internal/logging"
	"capstan/internal/logs"
	"capstan/internal/records"
	"capstan/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Capstan", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun capstan stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.QueueActive = status.Workflow.QueueActive
	resp.Stats = api.StatsMap(status.Workflow.Stats)
	resp.LastError = status.Workflow.LastError
	resp.ImportQueue = status.Workflow.ImportQueue
	resp.LockPath = status.LockFilePath
	resp.SnapshotPath = status.SnapshotPath
	resp.HistoryPath = status.HistoryPath
	resp.PID = status.PID
	if status.Workflow.LastRecord != nil {
		download := api.FromRecord(status.Workflow.LastRecord)
		resp.LastDownload = &download
	}
	resp.Components = api.FromComponentHealth(status.Workflow.Components)
	resp.Volumes = api.FromVolumeStatuses(status.Workflow.Volumes)
	return nil
}

func (s *service) DownloadCreate(req DownloadCreateRequest, resp *DownloadCreateResponse) error {
	s.log().Debug("download create requested")
	record, err := s.daemon.CreateDownload(s.ctx, req.Source, req.Owner, req.Destination)
	if err != nil {
		return err
	}
	resp.Download = api.FromRecord(record)
	s.log().Info("download created via IPC",
		logging.Int64(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldEventType, "download_create"))
	return nil
}

func (s *service) DownloadList(req DownloadListRequest, resp *DownloadListResponse) error {
	statuses := make([]records.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := records.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	resp.Downloads = api.FromRecords(s.daemon.ListDownloads(statuses...))
	return nil
}

func (s *service) DownloadDescribe(req DownloadDescribeRequest, resp *DownloadDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid download id %d", req.ID)
	}
	record, err := s.daemon.GetDownload(req.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.Download = api.FromRecord(record)
	return nil
}

func (s *service) DownloadPause(req DownloadPauseRequest, resp *DownloadPauseResponse) error {
	s.log().Debug("download pause requested", logging.Int64(logging.FieldRecordID, req.ID))
	record, err := s.daemon.PauseDownload(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Download = api.FromRecord(record)
	return nil
}

func (s *service) DownloadResume(req DownloadResumeRequest, resp *DownloadResumeResponse) error {
	s.log().Debug("download resume requested", logging.Int64(logging.FieldRecordID, req.ID))
	record, err := s.daemon.ResumeDownload(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Download = api.FromRecord(record)
	return nil
}

func (s *service) DownloadCancel(req DownloadCancelRequest, resp *DownloadCancelResponse) error {
	s.log().Debug("download cancel requested",
		logging.Int64(logging.FieldRecordID, req.ID),
		logging.Bool("delete_files", req.DeleteFiles))
	if err := s.daemon.CancelDownload(s.ctx, req.ID, req.DeleteFiles); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			resp.Cancelled = false
			return nil
		}
		return err
	}
	resp.Cancelled = true
	s.log().Info("download cancelled via IPC",
		logging.Int64(logging.FieldRecordID, req.ID),
		logging.String(logging.FieldEventType, "download_cancel"))
	return nil
}

func (s *service) DownloadImport(req DownloadImportRequest, resp *DownloadImportResponse) error {
	s.log().Debug("download import requested", logging.Int64(logging.FieldRecordID, req.ID))
	if err := s.daemon.ImportDownload(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Queued = true
	return nil
}

func (s *service) VolumesStatus(_ VolumesRequest, resp *VolumesResponse) error {
	resp.Volumes = api.FromVolumeStatuses(s.daemon.VolumesStatus(s.ctx))
	return nil
}

func (s *service) Cleanup(req CleanupRequest, resp *CleanupResponse) error {
	s.log().Debug("staging cleanup requested",
		logging.Int64("older_than_seconds", req.OlderThanSeconds),
		logging.Bool("orphaned", req.Orphaned))
	result, err := s.daemon.TriggerCleanup(s.ctx, time.Duration(req.OlderThanSeconds)*time.Second, req.Orphaned)
	if err != nil {
		return err
	}
	resp.Configured = result.Configured
	resp.Scope = result.Scope
	resp.Removed = append(resp.Removed, result.Removed.Removed...)
	resp.BytesFreed = result.Removed.BytesFreed
	for _, dirErr := range result.Removed.Errors {
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", dirErr.Path, dirErr.Error))
	}
	if len(resp.Removed) > 0 {
		s.log().Info("staging cleanup finished",
			logging.String(logging.FieldEventType, "staging_cleanup"),
			logging.Int("removed_count", len(resp.Removed)),
			logging.Int64("bytes_freed", resp.BytesFreed))
	}
	return nil
}

func (s *service) HistoryList(req HistoryListRequest, resp *HistoryListResponse) error {
	outcomes := make([]history.Outcome, 0, len(req.Outcomes))
	for _, raw := range req.Outcomes {
		parsed, ok := history.ParseOutcome(raw)
		if !ok {
			continue
		}
		outcomes = append(outcomes, parsed)
	}
	entries, err := s.daemon.HistoryList(s.ctx, req.Limit, outcomes...)
	if err != nil {
		return err
	}
	resp.Entries = api.FromHistoryEntries(entries)
	return nil
}

func (s *service) SnapshotHealth(_ SnapshotHealthRequest, resp *SnapshotHealthResponse) error {
	health := s.daemon.SnapshotHealth()
	resp.Path = health.Path
	resp.Exists = health.Exists
	resp.Readable = health.Readable
	resp.BackupExists = health.BackupExists
	resp.RecordCount = health.RecordCount
	resp.SavedAt = api.FormatTime(health.SavedAt)
	resp.Error = health.Error
	return nil
}

func (s *service) HistoryHealth(_ HistoryHealthRequest, resp *HistoryHealthResponse) error {
	health, err := s.daemon.HistoryHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.TotalEntries = health.TotalEntries
	resp.IntegrityCheck = health.IntegrityCheck
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) NotificationTest(_ NotificationTestRequest, resp *NotificationTestResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
