package orchestrator

import "storysync/internal/storyboard"

// EventKind names an observer notification.
type EventKind string

const (
	EventStateChanged    EventKind = "state_changed"
	EventDocumentUpdated EventKind = "document_updated"
	EventProgress        EventKind = "progress"
	EventClipSelected    EventKind = "clip_selected"
	EventUserError       EventKind = "user_error"
)

// Event is delivered to subscribed observers. Document, when present, is a
// private snapshot the observer may retain.
type Event struct {
	Kind     EventKind
	State    State
	Document *storyboard.Document
	Progress storyboard.Progress
	ClipID   string
	Message  string
}

// Subscribe registers an observer and returns its cancel function. Observers
// run synchronously on the goroutine producing the event and must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	id := o.nextObserver
	o.nextObserver++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) emit(evt Event) {
	o.mu.Lock()
	fns := make([]func(Event), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// snapshotLocked builds the document/progress view events carry.
func (o *Orchestrator) snapshotLocked() (*storyboard.Document, storyboard.Progress) {
	doc := o.doc.Clone()
	var progress storyboard.Progress
	if doc != nil {
		progress = doc.Progress()
	}
	return doc, progress
}
