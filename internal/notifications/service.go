package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stagehand/internal/config"
)

const userAgent = "Stagehand/0.1.0"

// Event identifies a pipeline milestone worth pushing to the operator.
type Event string

const (
	// EventReviewReady fires when transcription finishes and the lyrics
	// await correction.
	EventReviewReady Event = "review_ready"
	// EventFinalizeReady fires when the preview render finishes.
	EventFinalizeReady Event = "finalize_ready"
	// EventJobComplete fires when a job reaches its terminal state.
	EventJobComplete Event = "job_complete"
	// EventJobFailed fires when a job lands in the error state.
	EventJobFailed Event = "job_failed"
	// EventTest exercises the notification path end to end.
	EventTest Event = "test"
)

// Payload carries the event-specific fields used to format a message.
type Payload map[string]string

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventReviewReady:   cfg.Notifications.Review,
			EventFinalizeReady: cfg.Notifications.Finalize,
			EventJobComplete:   cfg.Notifications.Completion,
			EventJobFailed:     cfg.Notifications.Errors,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	track := strings.TrimSpace(payload["track"])
	if track == "" {
		track = "unknown track"
	}
	switch event {
	case EventReviewReady:
		return message{
			title: "Stagehand - Review Ready",
			body:  fmt.Sprintf("📝 Lyrics ready for review: %s", track),
			tags:  []string{"stagehand", "review", "ready"},
		}, true
	case EventFinalizeReady:
		return message{
			title: "Stagehand - Preview Ready",
			body:  fmt.Sprintf("🎬 Preview rendered: %s", track),
			tags:  []string{"stagehand", "render", "completed"},
		}, true
	case EventJobComplete:
		body := fmt.Sprintf("✅ Karaoke ready: %s", track)
		if code := strings.TrimSpace(payload["brandCode"]); code != "" {
			body = fmt.Sprintf("%s\nCode: %s", body, code)
		}
		if link := strings.TrimSpace(payload["shareLink"]); link != "" {
			body = fmt.Sprintf("%s\nShare: %s", body, link)
		}
		return message{
			title:    "Stagehand - Complete",
			body:     body,
			tags:     []string{"stagehand", "job", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		phase := strings.TrimSpace(payload["phase"])
		if phase == "" {
			phase = "pipeline"
		}
		detail := strings.TrimSpace(payload["error"])
		if detail == "" {
			detail = "unknown"
		}
		return message{
			title:    "Stagehand - Error",
			body:     fmt.Sprintf("❌ Error with %s: %s", phase, detail),
			tags:     []string{"stagehand", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Stagehand - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"stagehand", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
