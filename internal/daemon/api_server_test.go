package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"capstan/internal/api"
	"capstan/internal/records"
	"capstan/internal/services"
)

type recordStoreStub struct {
	list []*records.DownloadRecord
}

func (s *recordStoreStub) Get(id int64) (*records.DownloadRecord, error) {
	for _, rec := range s.list {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "records", "get", fmt.Sprintf("download %d", id), nil)
}

func (s *recordStoreStub) List(statuses ...records.Status) []*records.DownloadRecord {
	if len(statuses) == 0 {
		return s.list
	}
	var filtered []*records.DownloadRecord
	for _, rec := range s.list {
		for _, status := range statuses {
			if rec.Status == status {
				filtered = append(filtered, rec)
				break
			}
		}
	}
	return filtered
}

func (s *recordStoreStub) Stats() records.Stats {
	return records.Stats{Total: len(s.list)}
}

func stubServer(list ...*records.DownloadRecord) *apiServer {
	return &apiServer{svc: api.NewDownloadService(&recordStoreStub{list: list})}
}

func TestAPIServerHandleDownloads(t *testing.T) {
	srv := stubServer(
		&records.DownloadRecord{ID: 1, DisplayName: "Example", Status: records.StatusActive, CreatedAt: time.Now().UTC()},
		&records.DownloadRecord{ID: 2, DisplayName: "Waiting", Status: records.StatusQueued, CreatedAt: time.Now().UTC()},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/downloads", nil)
	w := httptest.NewRecorder()
	srv.handleDownloads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DownloadListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Downloads) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(resp.Downloads))
	}
	if resp.Downloads[0].DisplayName != "Example" {
		t.Fatalf("unexpected display name: %q", resp.Downloads[0].DisplayName)
	}
}

func TestAPIServerHandleDownloadsStatusFilter(t *testing.T) {
	srv := stubServer(
		&records.DownloadRecord{ID: 1, DisplayName: "Example", Status: records.StatusActive, CreatedAt: time.Now().UTC()},
		&records.DownloadRecord{ID: 2, DisplayName: "Waiting", Status: records.StatusQueued, CreatedAt: time.Now().UTC()},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/downloads?status=queued&status=bogus", nil)
	w := httptest.NewRecorder()
	srv.handleDownloads(w, req)

	var resp api.DownloadListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Downloads) != 1 || resp.Downloads[0].ID != 2 {
		t.Fatalf("expected only the queued download, got %+v", resp.Downloads)
	}
}

func TestAPIServerHandleDownloadItem(t *testing.T) {
	srv := stubServer(&records.DownloadRecord{ID: 7, DisplayName: "Example", Status: records.StatusCompleted, CreatedAt: time.Now().UTC()})

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/7", nil)
	w := httptest.NewRecorder()
	srv.handleDownloadItem(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DownloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Download.ID != 7 {
		t.Fatalf("unexpected id: %d", resp.Download.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/downloads/99", nil)
	w = httptest.NewRecorder()
	srv.handleDownloadItem(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/downloads/abc", nil)
	w = httptest.NewRecorder()
	srv.handleDownloadItem(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := authMiddleware("secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with matching token, got %d", w.Code)
	}

	passthrough := authMiddleware("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w = httptest.NewRecorder()
	passthrough(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected empty token to pass through, got %d", w.Code)
	}
}
