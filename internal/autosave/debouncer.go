package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

// Saver persists a document.
type Saver interface {
	SaveDocument(ctx context.Context, doc *storyboard.Document) (string, error)
}

// Debouncer coalesces document edits into trailing-edge saves.
type Debouncer struct {
	saver  Saver
	quiet  time.Duration
	logger *slog.Logger

	// OnSaveFailed, when set before the first Observe, is called for every
	// failed save attempt.
	OnSaveFailed func(doc *storyboard.Document, err error)

	mu        sync.Mutex
	timer     *time.Timer
	seq       int
	pending   *storyboard.Document
	pendingFP string
	lastSaved string
}

func NewDebouncer(saver Saver, quiet time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Debouncer{
		saver:  saver,
		quiet:  quiet,
		logger: logger.With(logging.String(logging.FieldComponent, "autosave")),
	}
}

// Observe records the current document state and restarts the quiet-period
// timer. A document whose fingerprint matches the last successful save
// discards any pending work instead of scheduling.
func (d *Debouncer) Observe(doc *storyboard.Document) {
	if doc == nil {
		return
	}
	fp := storyboard.Fingerprint(doc)

	d.mu.Lock()
	defer d.mu.Unlock()

	if fp == d.lastSaved {
		d.invalidateLocked()
		d.pending = nil
		d.pendingFP = ""
		return
	}

	d.invalidateLocked()
	d.pending = doc.Clone()
	d.pendingFP = fp
	seq := d.seq
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(seq) })
}

// Flush persists any pending state immediately and cancels the timer. It is
// a no-op when nothing is pending.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	d.invalidateLocked()
	doc, fp := d.pending, d.pendingFP
	d.pending = nil
	d.mu.Unlock()

	if doc == nil {
		return nil
	}
	return d.save(ctx, doc, fp)
}

// Cancel discards any pending save without persisting.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidateLocked()
	d.pending = nil
}

// Pending reports whether a save is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// invalidateLocked stops the timer and bumps the sequence so an already-fired
// timer callback observes it is stale.
func (d *Debouncer) invalidateLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

func (d *Debouncer) fire(seq int) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	doc, fp := d.pending, d.pendingFP
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	d.save(context.Background(), doc, fp)
}

func (d *Debouncer) save(ctx context.Context, doc *storyboard.Document, fp string) error {
	if _, err := d.saver.SaveDocument(ctx, doc); err != nil {
		d.logger.Warn("autosave failed",
			logging.DocumentID(doc.ID),
			logging.Error(err))
		if d.OnSaveFailed != nil {
			d.OnSaveFailed(doc, err)
		}
		return err
	}

	d.mu.Lock()
	d.lastSaved = fp
	d.mu.Unlock()
	d.logger.Debug("autosaved document", logging.DocumentID(doc.ID))
	return nil
}
