package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storysync/internal/backend"
	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

// LostConnectionMessage is the user-visible text for connection-level
// failures. Callers can match on it to distinguish transport loss from a
// failed job.
const LostConnectionMessage = "Lost connection to server."

// Endpoint resolves the websocket URL for a session's progress channel.
type Endpoint interface {
	ProgressURL(sessionID string) string
}

// Handlers receives decoded progress events. Any field may be nil.
type Handlers struct {
	OnProgress    func(storyboard.Progress)
	OnClipArrived func(storyboard.Clip)
	OnComplete    func(documentID string, status storyboard.JobStatus)
	OnError       func(message string)
	// Cleanup runs after the terminal callback, and only when the
	// subscription is still the active one at that moment.
	Cleanup func(sessionID string)
}

// Client maintains the single push subscription.
type Client struct {
	endpoint Endpoint
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu     sync.Mutex
	active *subscription
}

type subscription struct {
	sessionID string
	conn      *websocket.Conn
	handlers  Handlers
	// seen maps artifact id to the clip ids already delivered for it.
	seen map[string]map[string]struct{}
	done chan struct{}
}

// NewClient constructs a stream client dialing through endpoint.
func NewClient(endpoint Endpoint, dialTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:   logging.NewComponentLogger(logger, "stream"),
	}
}

// Attach opens the subscription for sessionID. Calling it again with the same
// id is a no-op; a different id tears down the previous subscription first
// (without firing its cleanup, since it is being superseded).
func (c *Client) Attach(ctx context.Context, sessionID string, handlers Handlers) error {
	c.mu.Lock()
	if c.active != nil {
		if c.active.sessionID == sessionID {
			c.mu.Unlock()
			return nil
		}
		c.teardownLocked()
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint.ProgressURL(sessionID), nil)
	if err != nil {
		return fmt.Errorf("dial progress stream: %w", err)
	}

	sub := &subscription{
		sessionID: sessionID,
		conn:      conn,
		handlers:  handlers,
		seen:      make(map[string]map[string]struct{}),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.active != nil {
		// Another Attach raced us; the newer one wins.
		if c.active.sessionID == sessionID {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.teardownLocked()
	}
	c.active = sub
	c.mu.Unlock()

	c.logger.Info("attached to progress stream", logging.SessionID(sessionID))
	go c.readLoop(sub)
	return nil
}

// Detach closes any open subscription without firing callbacks. Used when the
// owning context goes away (navigation, reset).
func (c *Client) Detach() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
}

// Active returns the session id of the open subscription, if any.
func (c *Client) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.sessionID, true
}

// teardownLocked closes the current subscription without callbacks. Callers
// hold c.mu.
func (c *Client) teardownLocked() {
	if c.active == nil {
		return
	}
	_ = c.active.conn.Close()
	c.active = nil
}

// deactivate removes sub if it is still the active subscription. The boolean
// result is the superseded-session guard: cleanup and terminal callbacks fire
// only when it reports true.
func (c *Client) deactivate(sub *subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != sub {
		return false
	}
	c.active = nil
	return true
}

func (c *Client) readLoop(sub *subscription) {
	defer close(sub.done)
	logger := c.logger.With(logging.SessionID(sub.sessionID))

	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			_ = sub.conn.Close()
			if !c.deactivate(sub) {
				// Superseded or detached; the close was expected.
				return
			}
			logger.Warn("progress stream connection lost", logging.Error(err))
			if sub.handlers.OnError != nil {
				sub.handlers.OnError(LostConnectionMessage)
			}
			if sub.handlers.Cleanup != nil {
				sub.handlers.Cleanup(sub.sessionID)
			}
			return
		}

		var msg backend.ProgressMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("discarding malformed progress message", logging.Error(err))
			continue
		}
		if msg.Type != "progress" {
			logger.Debug("ignoring message", logging.String("type", msg.Type))
			continue
		}

		if msg.Data.Status.IsTerminal() {
			c.handleTerminal(sub, logger, msg.Data)
			return
		}

		if sub.handlers.OnProgress != nil {
			sub.handlers.OnProgress(storyboard.Progress{
				Completed: msg.Data.Current,
				Total:     msg.Data.Total,
				Status:    msg.Data.Status,
			})
		}
		if msg.Data.NewClip != nil {
			c.deliverClip(sub, logger, *msg.Data.NewClip)
		}
	}
}

// deliverClip forwards a clip-arrival unless the (artifact id, clip id) pair
// was already delivered. Clips without an artifact id cannot be deduplicated
// by that key and are forwarded unconditionally; the orchestrator's
// insert-by-id is the second line of defense.
func (c *Client) deliverClip(sub *subscription, logger *slog.Logger, clip storyboard.Clip) {
	if clip.ArtifactID != "" {
		delivered, ok := sub.seen[clip.ArtifactID]
		if !ok {
			delivered = make(map[string]struct{})
			sub.seen[clip.ArtifactID] = delivered
		}
		if _, dup := delivered[clip.ID]; dup {
			logger.Info("discarding duplicate clip arrival",
				logging.ClipID(clip.ID), logging.ArtifactID(clip.ArtifactID))
			return
		}
		delivered[clip.ID] = struct{}{}
	}
	if sub.handlers.OnClipArrived != nil {
		sub.handlers.OnClipArrived(clip)
	}
}

// handleTerminal stops listening, fires exactly one of OnComplete/OnError,
// then Cleanup, in that order, and only if the subscription is still the
// active one.
func (c *Client) handleTerminal(sub *subscription, logger *slog.Logger, data backend.ProgressData) {
	_ = sub.conn.Close()
	if !c.deactivate(sub) {
		return
	}

	switch data.Status {
	case storyboard.StatusFailed:
		message := data.Error
		if message == "" {
			message = "Generation failed."
		}
		logger.Warn("generation failed", logging.String("reason", message))
		if sub.handlers.OnError != nil {
			sub.handlers.OnError(message)
		}
	default:
		logger.Info("generation finished",
			logging.String("status", string(data.Status)),
			logging.DocumentID(data.StoryboardID))
		if sub.handlers.OnComplete != nil {
			sub.handlers.OnComplete(data.StoryboardID, data.Status)
		}
	}
	if sub.handlers.Cleanup != nil {
		sub.handlers.Cleanup(sub.sessionID)
	}
}
