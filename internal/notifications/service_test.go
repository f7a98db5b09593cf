package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"capstan/internal/config"
	"capstan/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, notifications.Payload{"name": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "download added",
			event: notifications.EventDownloadAdded,
			payload: notifications.Payload{
				"name": "ubuntu-24.04-desktop-amd64.iso",
			},
			expectTitle:   "Capstan - Download Queued",
			expectMessage: "Queued: ubuntu-24.04-desktop-amd64.iso",
			expectTags:    "capstan,download,queued",
		},
		{
			name:  "download completed",
			event: notifications.EventDownloadCompleted,
			payload: notifications.Payload{
				"name": "Big Buck Bunny",
			},
			expectTitle:   "Capstan - Download Complete",
			expectMessage: "✅ Download complete: Big Buck Bunny",
			expectTags:    "capstan,download,completed",
		},
		{
			name:  "download imported",
			event: notifications.EventDownloadImported,
			payload: notifications.Payload{
				"name":        "Night of the Living Dead",
				"destination": "/library/video/Night of the Living Dead",
			},
			expectTitle:   "Capstan - Library Updated",
			expectMessage: "Added to library: Night of the Living Dead\nLocation: /library/video/Night of the Living Dead",
			expectTags:    "capstan,library,added",
		},
		{
			name:  "storage critical",
			event: notifications.EventStorageCritical,
			payload: notifications.Payload{
				"detail": "staging volume has 4 GiB free",
			},
			expectTitle:    "Capstan - Storage Critical",
			expectMessage:  "⚠️ Free space critical; new downloads and imports are gated\nstaging volume has 4 GiB free",
			expectTags:     "capstan,storage,alert",
			expectPriority: "high",
		},
		{
			name:  "queue completed with failures",
			event: notifications.EventQueueCompleted,
			payload: notifications.Payload{
				"imported": 4,
				"failed":   1,
				"duration": "2m30s",
			},
			expectTitle:   "Capstan - Queue Drained (with errors)",
			expectMessage: "Queue drained: 4 finished, 1 failed in 2m30s",
			expectTags:    "capstan,queue,completed",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "import (download #3)",
				"error":   errors.New("no space left on device"),
			},
			expectTitle:    "Capstan - Error",
			expectMessage:  "❌ Error with import (download #3): no space left on device",
			expectTags:     "capstan,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled event: %s", r.URL.String())
	}))
	defer server.Close()

	// Started-class events are off by default.
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	disabled := []notifications.Event{
		notifications.EventDownloadStarted,
		notifications.EventQueueStarted,
	}

	for _, event := range disabled {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"name": "ignored"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestPublishDedupsRepeatedEvents(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{"detail": "staging volume has 4 GiB free"}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventStorageCritical, payload); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("repeated event sent %d times, want 1", got)
	}

	// A different event is a different dedup key.
	if err := svc.Publish(context.Background(), notifications.EventStorageRecovered, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("distinct event not sent: %d calls, want 2", got)
	}
}

func TestPublishSendsEveryEventWhenDedupDisabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 0

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{"name": "Example"}
	for i := 0; i < 2; i++ {
		if err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, payload); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("sent %d times with dedup disabled, want 2", got)
	}
}

func TestPublishReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, notifications.Payload{"name": "Example"})
	if err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}

func TestTestNotificationBypassesToggles(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Added = false
	cfg.Notifications.Started = false
	cfg.Notifications.Completed = false
	cfg.Notifications.Imported = false
	cfg.Notifications.Storage = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("test notification sent %d times, want 1", got)
	}
}
