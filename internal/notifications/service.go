package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"capstan/internal/config"
	"capstan/internal/textutil"
)

const userAgent = "Capstan/0.1.0"

// Event enumerates the lifecycle milestones that can be published.
type Event string

const (
	EventDownloadAdded     Event = "download_added"
	EventDownloadStarted   Event = "download_started"
	EventDownloadCompleted Event = "download_completed"
	EventDownloadImported  Event = "download_imported"
	EventStorageCritical   Event = "storage_critical"
	EventStorageRecovered  Event = "storage_recovered"
	EventQueueStarted      Event = "queue_started"
	EventQueueCompleted    Event = "queue_completed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries the event-specific fields used to render a message.
// Values are formatted with fmt semantics; errors render via Error().
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch value := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case error:
		return strings.TrimSpace(value.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func (p Payload) count(key string) int {
	if p == nil {
		return 0
	}
	switch value := p[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

// Service defines the notification surface exposed to lifecycle components.
type Service interface {
	Publish(ctx context.Context, event Event, data Payload) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		toggles:     cfg.Notifications,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		lastSent:    make(map[string]time.Time),
	}
}

// message is the rendered ntfy request: headers plus the plain-text body.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	toggles     config.Notifications
	dedupWindow time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, err := render(event, data)
	if err != nil {
		return err
	}
	if n.suppressed(event, msg.body) {
		return nil
	}
	if err := n.send(ctx, msg); err != nil {
		return err
	}
	n.markSent(event, msg.body)
	return nil
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	msg, err := render(EventTest, nil)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

// enabled maps events to their config toggles. Test notifications always
// pass so `capstan notify --test` works regardless of toggle state.
func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventDownloadAdded:
		return n.toggles.Added
	case EventDownloadStarted, EventQueueStarted:
		return n.toggles.Started
	case EventDownloadCompleted, EventQueueCompleted:
		return n.toggles.Completed
	case EventDownloadImported:
		return n.toggles.Imported
	case EventStorageCritical, EventStorageRecovered:
		return n.toggles.Storage
	case EventError:
		return n.toggles.Errors
	case EventTest:
		return true
	default:
		return false
	}
}

func dedupKey(event Event, body string) string {
	return string(event) + "|" + textutil.SanitizeToken(body)
}

func (n *ntfyService) suppressed(event Event, body string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	sent, ok := n.lastSent[dedupKey(event, body)]
	return ok && time.Since(sent) < n.dedupWindow
}

func (n *ntfyService) markSent(event Event, body string) {
	if n.dedupWindow <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	n.lastSent[dedupKey(event, body)] = now
	// Drop expired keys so the map tracks only the live window.
	for key, sent := range n.lastSent {
		if now.Sub(sent) >= n.dedupWindow {
			delete(n.lastSent, key)
		}
	}
}

func render(event Event, data Payload) (message, error) {
	switch event {
	case EventDownloadAdded:
		name := data.text("name")
		if name == "" {
			name = "download"
		}
		return message{
			title: "Capstan - Download Queued",
			body:  fmt.Sprintf("Queued: %s", name),
			tags:  []string{"capstan", "download", "queued"},
		}, nil
	case EventDownloadStarted:
		name := data.text("name")
		if name == "" {
			name = "download"
		}
		return message{
			title: "Capstan - Download Started",
			body:  fmt.Sprintf("⬇️ Started: %s", name),
			tags:  []string{"capstan", "download", "started"},
		}, nil
	case EventDownloadCompleted:
		name := data.text("name")
		if name == "" {
			name = "download"
		}
		return message{
			title: "Capstan - Download Complete",
			body:  fmt.Sprintf("✅ Download complete: %s", name),
			tags:  []string{"capstan", "download", "completed"},
		}, nil
	case EventDownloadImported:
		name := data.text("name")
		if name == "" {
			name = "download"
		}
		body := fmt.Sprintf("Added to library: %s", name)
		if destination := data.text("destination"); destination != "" {
			body = fmt.Sprintf("%s\nLocation: %s", body, destination)
		}
		return message{
			title: "Capstan - Library Updated",
			body:  body,
			tags:  []string{"capstan", "library", "added"},
		}, nil
	case EventStorageCritical:
		body := "⚠️ Free space critical; new downloads and imports are gated"
		if detail := data.text("detail"); detail != "" {
			body = fmt.Sprintf("%s\n%s", body, detail)
		}
		return message{
			title:    "Capstan - Storage Critical",
			body:     body,
			tags:     []string{"capstan", "storage", "alert"},
			priority: "high",
		}, nil
	case EventStorageRecovered:
		return message{
			title: "Capstan - Storage Recovered",
			body:  "Free space recovered; downloads and imports resume",
			tags:  []string{"capstan", "storage", "recovered"},
		}, nil
	case EventQueueStarted:
		return message{
			title: "Capstan - Queue Active",
			body:  fmt.Sprintf("Started processing queue with %d downloads", data.count("count")),
			tags:  []string{"capstan", "queue", "started"},
		}, nil
	case EventQueueCompleted:
		imported := data.count("imported")
		failed := data.count("failed")
		durationText := data.text("duration")
		if durationText == "" {
			durationText = "0s"
		}
		title := "Capstan - Queue Drained"
		body := fmt.Sprintf("Queue drained: %d downloads finished in %s", imported, durationText)
		if failed > 0 {
			title = "Capstan - Queue Drained (with errors)"
			body = fmt.Sprintf("Queue drained: %d finished, %d failed in %s", imported, failed, durationText)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"capstan", "queue", "completed"},
		}, nil
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if contextLabel := data.text("context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if errText := data.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Capstan - Error",
			body:     builder.String(),
			tags:     []string{"capstan", "error", "alert"},
			priority: "high",
		}, nil
	case EventTest:
		return message{
			title:    "Capstan - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"capstan", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, fmt.Errorf("notifications: unknown event %q", event)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(ctx context.Context, event Event, data Payload) error { return nil }
func (noopService) TestNotification(ctx context.Context) error                   { return nil }
