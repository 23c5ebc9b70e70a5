package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

// Fetcher retrieves the authoritative document for a poll tick.
type Fetcher interface {
	GetDocument(ctx context.Context, documentID string) (*storyboard.Document, error)
}

// Hooks receives poll outcomes. Fields may be nil.
type Hooks struct {
	// OnSessionAvailable fires at most once per loop, after the loop has
	// stopped, when the document gains an active push-channel session id.
	OnSessionAvailable func(sessionID string)
	// OnUpdate fires on every tick that observes an in-progress document
	// without a session id, so incremental clip arrivals still reach the UI.
	OnUpdate func(doc *storyboard.Document, progress storyboard.Progress)
	// OnComplete fires at most once per loop, after the loop has stopped,
	// when the document is no longer generating.
	OnComplete func(doc *storyboard.Document)
}

// Controller runs at most one polling loop at a time. Starting a new loop
// implicitly cancels any previous one.
type Controller struct {
	fetcher Fetcher
	logger  *slog.Logger

	mu     sync.Mutex
	active *handle
}

// handle identifies one polling loop so a stale loop observing its own
// cancellation cannot fire callbacks meant for its successor.
type handle struct {
	documentID string
	cancel     context.CancelFunc
}

func NewController(fetcher Fetcher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		fetcher: fetcher,
		logger:  logger.With(logging.String(logging.FieldComponent, "poll-controller")),
	}
}

// StartConditional polls documentID until the job completes or a push-channel
// session id appears, whichever comes first. Completion is checked before
// session availability on every tick.
func (c *Controller) StartConditional(ctx context.Context, documentID string, interval time.Duration, hooks Hooks) {
	c.start(ctx, documentID, interval, hooks, true)
}

// StartPolling polls documentID until the job completes. Session-id
// availability is ignored.
func (c *Controller) StartPolling(ctx context.Context, documentID string, interval time.Duration, hooks Hooks) {
	c.start(ctx, documentID, interval, hooks, false)
}

func (c *Controller) start(ctx context.Context, documentID string, interval time.Duration, hooks Hooks, conditional bool) {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &handle{documentID: documentID, cancel: cancel}

	c.mu.Lock()
	if prev := c.active; prev != nil {
		prev.cancel()
	}
	c.active = h
	c.mu.Unlock()

	c.logger.Info("polling started",
		logging.DocumentID(documentID),
		logging.Duration("interval", interval),
		logging.Bool("conditional", conditional))

	go c.loop(loopCtx, h, interval, hooks, conditional)
}

// Stop cancels the active loop, if any. It does not wait for an in-flight
// tick to finish and fires no callbacks.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()

	if h != nil {
		h.cancel()
	}
}

// Active reports whether a polling loop currently owns the controller, and
// for which document.
func (c *Controller) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.documentID, true
}

// deactivate retires h if it is still the active loop. A false return means
// the loop was superseded or stopped and must not fire callbacks.
func (c *Controller) deactivate(h *handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != h {
		return false
	}
	c.active = nil
	h.cancel()
	return true
}

func (c *Controller) loop(ctx context.Context, h *handle, interval time.Duration, hooks Hooks, conditional bool) {
	if c.tick(ctx, h, hooks, conditional) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick(ctx, h, hooks, conditional) {
				return
			}
		}
	}
}

// tick fetches the document once and branches on its generation state. It
// returns true when the loop should exit.
func (c *Controller) tick(ctx context.Context, h *handle, hooks Hooks, conditional bool) bool {
	doc, err := c.fetcher.GetDocument(ctx, h.documentID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		c.logger.Warn("poll fetch failed; will retry",
			logging.DocumentID(h.documentID),
			logging.Error(err))
		return false
	}
	if doc == nil {
		c.logger.Warn("poll fetch returned no document; will retry",
			logging.DocumentID(h.documentID))
		return false
	}

	if !doc.Generating() {
		if !c.deactivate(h) {
			return true
		}
		c.logger.Info("polling observed completion", logging.DocumentID(h.documentID))
		if hooks.OnComplete != nil {
			hooks.OnComplete(doc)
		}
		return true
	}

	if conditional {
		if sessionID := doc.ActiveSessionID(); sessionID != "" {
			if !c.deactivate(h) {
				return true
			}
			c.logger.Info("push channel available; handing off",
				logging.DocumentID(h.documentID),
				logging.SessionID(sessionID))
			if hooks.OnSessionAvailable != nil {
				hooks.OnSessionAvailable(sessionID)
			}
			return true
		}
	}

	if hooks.OnUpdate != nil {
		hooks.OnUpdate(doc, doc.Progress())
	}
	return false
}
