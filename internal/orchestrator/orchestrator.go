package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storysync/internal/autosave"
	"storysync/internal/backend"
	"storysync/internal/config"
	"storysync/internal/logging"
	"storysync/internal/notifications"
	"storysync/internal/poll"
	"storysync/internal/reconcile"
	"storysync/internal/registry"
	"storysync/internal/storyboard"
	"storysync/internal/stream"
)

// State is the orchestrator's lifecycle phase for the current document.
type State string

const (
	StateIdle                State = "idle"
	StateInitializing        State = "initializing"
	StateGenerating          State = "generating"
	StateCompleted           State = "completed"
	StateCompletedWithErrors State = "completed_with_errors"
	StateFailed              State = "failed"
)

// Busy reports whether a generation job is running or being set up.
func (s State) Busy() bool {
	return s == StateInitializing || s == StateGenerating
}

var (
	ErrGenerationActive = errors.New("a generation job is already active")
	ErrNoDocument       = errors.New("no document loaded")
	ErrClipNotFound     = errors.New("clip not found")
)

// Backend is the server API surface the orchestrator needs.
type Backend interface {
	Initialize(ctx context.Context, req backend.InitializeRequest) (*backend.InitializeResponse, error)
	Start(ctx context.Context, sessionID string) error
	GetDocument(ctx context.Context, documentID string) (*storyboard.Document, error)
	SaveDocument(ctx context.Context, doc *storyboard.Document) (string, error)
	FetchArtifact(ctx context.Context, artifactID string) (*backend.Artifact, error)
	ListArtifacts(ctx context.Context) ([]backend.ArtifactSummary, error)
}

// Deps bundles the collaborating services.
type Deps struct {
	Backend  Backend
	Stream   *stream.Client
	Poller   *poll.Controller
	Verifier *reconcile.Engine
	Saver    *autosave.Debouncer
	Registry *registry.Registry
	Notifier notifications.Service
	Config   *config.Config
	Logger   *slog.Logger
}

// Orchestrator coordinates generation monitoring and document edits.
type Orchestrator struct {
	backend  Backend
	stream   *stream.Client
	poller   *poll.Controller
	verifier *reconcile.Engine
	saver    *autosave.Debouncer
	registry *registry.Registry
	notifier notifications.Service
	cfg      *config.Config
	logger   *slog.Logger

	mu sync.Mutex
	// genSeq identifies the current job attempt. Every async callback
	// captures the sequence it was created under and no-ops when it no
	// longer matches, which makes terminal handling exactly-once.
	genSeq         int
	state          State
	doc            *storyboard.Document
	selectedClipID string
	mon            monitor

	observers    map[int]func(Event)
	nextObserver int
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	o := &Orchestrator{
		backend:   deps.Backend,
		stream:    deps.Stream,
		poller:    deps.Poller,
		verifier:  deps.Verifier,
		saver:     deps.Saver,
		registry:  deps.Registry,
		notifier:  notifier,
		cfg:       deps.Config,
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		state:     StateIdle,
		mon:       notMonitoring{},
		observers: make(map[int]func(Event)),
	}
	if o.saver != nil {
		o.saver.OnSaveFailed = o.handleSaveFailed
	}
	return o
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Document returns a snapshot of the current document, or nil.
func (o *Orchestrator) Document() *storyboard.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.Clone()
}

// SelectedClip returns the currently selected clip.
func (o *Orchestrator) SelectedClip() (storyboard.Clip, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return storyboard.Clip{}, false
	}
	return storyboard.FindClip(o.doc.Clips, o.selectedClipID)
}

// Reset returns the orchestrator to Idle, tearing down any live subscription
// or polling loop and discarding pending autosave work.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.genSeq++
	o.setMonitorLocked(notMonitoring{})
	o.doc = nil
	o.selectedClipID = ""
	o.state = StateIdle
	o.mu.Unlock()

	if o.saver != nil {
		o.saver.Cancel()
	}
	o.logger.Info("orchestrator reset")
	o.emit(Event{Kind: EventStateChanged, State: StateIdle})
}

func (o *Orchestrator) handleSaveFailed(doc *storyboard.Document, err error) {
	name := ""
	if doc != nil {
		name = doc.Name
	}
	o.notify(notifications.EventSaveFailed, notifications.Payload{"documentName": name})
	o.emit(Event{Kind: EventUserError, State: o.State(), Message: "Could not save your changes."})
}

func (o *Orchestrator) notify(event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.NotifyTimeout())
	defer cancel()
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification delivery failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
