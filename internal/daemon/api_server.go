package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"capstan/internal/api"
	"capstan/internal/config"
	"capstan/internal/logging"
	"capstan/internal/records"
)

// apiServer exposes read-only daemon state over HTTP for remote status
// checks and log streaming. It is optional; with no bind address configured
// the daemon serves IPC only.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.DownloadService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		svc:    api.NewDownloadService(d.store),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	for path, handler := range map[string]http.HandlerFunc{
		"/api/status":     srv.handleStatus,
		"/api/downloads":  srv.handleDownloads,
		"/api/downloads/": srv.handleDownloadItem,
		"/api/volumes":    srv.handleVolumes,
		"/api/logs":       srv.handleLogs,
	} {
		mux.HandleFunc(path, authMiddleware(token, handler))
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.log().Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.shutdown()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) shutdown() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

// requireGet rejects non-GET requests; every endpoint here is read-only.
func (s *apiServer) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		SnapshotPath: status.SnapshotPath,
		HistoryPath:  status.HistoryPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.svc == nil {
		s.writeJSON(w, http.StatusOK, api.DownloadListResponse{Downloads: nil})
		return
	}
	var statuses []records.Status
	for _, value := range r.URL.Query()["status"] {
		if parsed, ok := records.ParseStatus(value); ok {
			statuses = append(statuses, parsed)
		}
	}
	s.writeJSON(w, http.StatusOK, api.DownloadListResponse{Downloads: s.svc.List(statuses...)})
}

func (s *apiServer) handleDownloadItem(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
	if s.svc == nil || idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "download not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid download id")
		return
	}
	download, err := s.svc.Describe(id)
	switch {
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	case download == nil:
		s.writeError(w, http.StatusNotFound, "download not found")
	default:
		s.writeJSON(w, http.StatusOK, api.DownloadResponse{Download: *download})
	}
}

func (s *apiServer) handleVolumes(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	statuses := s.daemon.VolumesStatus(r.Context())
	s.writeJSON(w, http.StatusOK, api.VolumesResponse{Volumes: api.FromVolumeStatuses(statuses)})
}

// logsQuery is the parsed form of /api/logs query parameters.
type logsQuery struct {
	since     uint64
	limit     int
	follow    bool
	tail      bool
	recordID  int64
	component string
}

func parseLogsQuery(r *http.Request) logsQuery {
	values := r.URL.Query()
	q := logsQuery{
		follow:    parseBoolParam(values.Get("follow")),
		tail:      parseBoolParam(values.Get("tail")),
		component: strings.TrimSpace(values.Get("component")),
	}
	q.since, _ = strconv.ParseUint(values.Get("since"), 10, 64)
	q.limit, _ = strconv.Atoi(values.Get("limit"))
	if q.limit <= 0 {
		q.limit = 200
	}
	if value := strings.TrimSpace(values.Get("record")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			q.recordID = parsed
		}
	}
	return q
}

func parseBoolParam(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	hub := s.daemon.LogStream()
	archive := s.daemon.LogArchive()
	if hub == nil && archive == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	q := parseLogsQuery(r)
	events, next, err := s.collectLogEvents(r.Context(), hub, archive, q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filtered := make([]api.LogEvent, 0, len(events))
	for _, evt := range events {
		if q.recordID != 0 && evt.RecordID != q.recordID {
			continue
		}
		if q.component != "" && !strings.EqualFold(q.component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

// collectLogEvents serves a log page from the in-memory hub when the cursor
// is still inside its ring, and replays from the journal when it fell behind.
func (s *apiServer) collectLogEvents(ctx context.Context, hub *logging.StreamHub, archive *logging.EventArchive, q logsQuery) ([]api.LogEvent, uint64, error) {
	if archive != nil && q.since > 0 {
		behindHub := hub == nil
		if hub != nil {
			if first := hub.FirstSequence(); first > 0 && q.since < first {
				behindHub = true
			}
		}
		if behindHub {
			archived, cursor, err := archive.ReadSince(q.since, q.limit)
			if err != nil {
				s.log().Warn("log archive read failed", logging.Error(err))
			} else if len(archived) > 0 {
				return convertLogEvents(archived), cursor, nil
			}
		}
	}

	if hub == nil {
		return nil, 0, nil
	}
	if q.tail && q.since == 0 && !q.follow {
		raw, cursor := hub.Tail(q.limit)
		return convertLogEvents(raw), cursor, nil
	}
	raw, cursor, err := hub.Fetch(ctx, q.since, q.limit, q.follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, err
	}
	return convertLogEvents(raw), cursor, nil
}

func convertLogEvents(events []logging.LogEvent) []api.LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]api.LogEvent, 0, len(events))
	for _, evt := range events {
		details := make([]api.DetailField, 0, len(evt.Details))
		for _, detail := range evt.Details {
			details = append(details, api.DetailField{Label: detail.Label, Value: detail.Value})
		}
		out = append(out, api.LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: evt.Timestamp,
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			Stage:     evt.Stage,
			RecordID:  evt.RecordID,
			Fields:    evt.Fields,
			Details:   details,
		})
	}
	return out
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
