package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storysync/internal/config"
)

const userAgent = "StorySync-Go/0.1.0"

// Event identifies a generation lifecycle milestone.
type Event string

const (
	EventGenerationStarted             Event = "generation_started"
	EventGenerationCompleted           Event = "generation_completed"
	EventGenerationCompletedWithErrors Event = "generation_completed_with_errors"
	EventGenerationFailed              Event = "generation_failed"
	EventSaveFailed                    Event = "save_failed"
	EventConnectionLost                Event = "connection_lost"
)

// Payload carries event-specific details keyed by field name.
type Payload map[string]string

// Service defines the notification surface exposed to sync components.
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

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewNop returns a Service that discards every event.
func NewNop() Service {
	return noopService{}
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
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders an event into an ntfy message. Suppressed events return
// ok=false: started and connection-lost are too noisy for push delivery and
// stay in the structured log only.
func format(event Event, payload Payload) (message, bool) {
	board := strings.TrimSpace(payload["documentName"])
	if board == "" {
		board = "storyboard"
	}

	switch event {
	case EventGenerationCompleted:
		return message{
			title: "StorySync - Generation Complete",
			body:  fmt.Sprintf("All %s scenes ready: %s", strings.TrimSpace(payload["scenes"]), board),
			tags:  []string{"storysync", "generation", "completed"},
		}, true
	case EventGenerationCompletedWithErrors:
		return message{
			title: "StorySync - Generation Complete (with errors)",
			body:  fmt.Sprintf("%s of %s scenes ready: %s", strings.TrimSpace(payload["scenes"]), strings.TrimSpace(payload["total"]), board),
			tags:  []string{"storysync", "generation", "completed"},
		}, true
	case EventGenerationFailed:
		reason := strings.TrimSpace(payload["reason"])
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "StorySync - Generation Failed",
			body:     fmt.Sprintf("Generation failed for %s: %s", board, reason),
			tags:     []string{"storysync", "generation", "failed"},
			priority: "high",
		}, true
	case EventSaveFailed:
		return message{
			title:    "StorySync - Save Failed",
			body:     fmt.Sprintf("Could not save %s; recent edits are at risk", board),
			tags:     []string{"storysync", "save", "failed"},
			priority: "high",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Collector records published events for assertions in tests.
type Collector struct {
	mu     sync.Mutex
	events []CollectedEvent
}

type CollectedEvent struct {
	Event   Event
	Payload Payload
}

func (c *Collector) Publish(_ context.Context, event Event, payload Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, CollectedEvent{Event: event, Payload: payload})
	return nil
}

// Events returns a snapshot of everything published so far.
func (c *Collector) Events() []CollectedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CollectedEvent(nil), c.events...)
}
