package orchestrator

import (
	"context"
	"strconv"
	"time"

	"storysync/internal/backend"
	"storysync/internal/logging"
	"storysync/internal/notifications"
	"storysync/internal/poll"
	"storysync/internal/registry"
	"storysync/internal/storyboard"
	"storysync/internal/stream"
)

// GenerateRequest describes a new generation job.
type GenerateRequest struct {
	Prompt    string
	Provider  string
	Model     string
	NumScenes int
}

// Generate initializes and starts a generation job for the prompt. When a
// document is already loaded the job regenerates into it.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) error {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return ErrGenerationActive
	}
	o.genSeq++
	seq := o.genSeq
	o.state = StateInitializing
	existingID := ""
	if o.doc != nil {
		existingID = o.doc.ID
	}
	o.mu.Unlock()
	o.emit(Event{Kind: EventStateChanged, State: StateInitializing})

	return o.beginJob(ctx, seq, backend.InitializeRequest{
		Prompt:             req.Prompt,
		Provider:           req.Provider,
		Model:              req.Model,
		NumScenes:          req.NumScenes,
		ExistingDocumentID: existingID,
	})
}

// Load fetches a document and, when it reports an in-progress job, re-enters
// monitoring: push when a session id is known, conditional polling otherwise.
// A job stuck in initializing with no session id crashed before it truly
// began and is re-issued from scratch.
func (o *Orchestrator) Load(ctx context.Context, documentID string) error {
	doc, err := o.backend.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.genSeq++
	seq := o.genSeq
	o.setMonitorLocked(notMonitoring{})
	o.doc = doc
	o.selectedClipID = storyboard.DefaultClipID(doc.Clips)

	if !doc.Generating() {
		o.state = StateIdle
		docSnap, progress := o.snapshotLocked()
		o.mu.Unlock()
		o.emit(Event{Kind: EventDocumentUpdated, State: StateIdle, Document: docSnap, Progress: progress})
		return nil
	}

	status := doc.GenerationStatus
	if status.Status == storyboard.StatusInitializing && status.ActiveSessionID == "" {
		o.state = StateInitializing
		prompt := doc.Description
		if prompt == "" {
			prompt = doc.Name
		}
		total := status.TotalScenes
		o.mu.Unlock()

		o.logger.Info("document stuck in initializing with no session; re-issuing job",
			logging.DocumentID(documentID))
		o.emit(Event{Kind: EventStateChanged, State: StateInitializing})
		return o.beginJob(ctx, seq, backend.InitializeRequest{
			Prompt:             prompt,
			NumScenes:          total,
			ExistingDocumentID: documentID,
		})
	}

	o.state = StateGenerating
	sessionID := status.ActiveSessionID
	if sessionID != "" {
		o.setMonitorLocked(monitorStreaming{sessionID: sessionID})
	} else {
		o.setMonitorLocked(monitorPolling{})
	}
	docSnap, progress := o.snapshotLocked()
	o.mu.Unlock()

	o.emit(Event{Kind: EventDocumentUpdated, State: StateGenerating, Document: docSnap, Progress: progress})
	if sessionID != "" {
		o.attachStream(seq, sessionID)
	} else {
		o.poller.StartConditional(context.Background(), documentID, o.cfg.PollInterval(), o.pollHooks(seq, documentID))
	}
	return nil
}

// beginJob issues initialize and start, then installs the push monitor.
func (o *Orchestrator) beginJob(ctx context.Context, seq int, req backend.InitializeRequest) error {
	resp, err := o.backend.Initialize(ctx, req)
	if err != nil {
		o.failSetup(seq, err)
		return err
	}

	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return nil
	}
	doc := resp.Document
	if doc.Name == "" {
		doc.Name = storyboard.DeriveTitle(req.Prompt)
	}
	if doc.GenerationStatus == nil {
		doc.GenerationStatus = &storyboard.GenerationStatus{}
	}
	doc.GenerationStatus.InProgress = true
	doc.GenerationStatus.Status = storyboard.StatusInitializing
	doc.GenerationStatus.ActiveSessionID = resp.SessionID
	if doc.GenerationStatus.TotalScenes == 0 {
		doc.GenerationStatus.TotalScenes = req.NumScenes
	}
	if doc.GenerationStatus.StartedAt == nil {
		now := time.Now().UTC()
		doc.GenerationStatus.StartedAt = &now
	}
	o.doc = doc
	docSnap, progress := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(Event{Kind: EventDocumentUpdated, State: StateInitializing, Document: docSnap, Progress: progress})

	if err := o.backend.Start(ctx, resp.SessionID); err != nil {
		o.failSetup(seq, err)
		return err
	}

	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return nil
	}
	o.state = StateGenerating
	if o.doc != nil && o.doc.GenerationStatus != nil {
		o.doc.GenerationStatus.Status = storyboard.StatusGenerating
	}
	o.setMonitorLocked(monitorStreaming{sessionID: resp.SessionID})
	o.mu.Unlock()
	o.emit(Event{Kind: EventStateChanged, State: StateGenerating})

	o.attachStream(seq, resp.SessionID)
	return nil
}

// failSetup marks a job that never reached Generating as failed.
func (o *Orchestrator) failSetup(seq int, err error) {
	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return
	}
	o.genSeq++
	o.setMonitorLocked(notMonitoring{})
	o.state = StateFailed
	name := ""
	if o.doc != nil {
		name = o.doc.Name
		if o.doc.GenerationStatus != nil {
			o.doc.GenerationStatus.InProgress = false
			o.doc.GenerationStatus.Status = storyboard.StatusFailed
			o.doc.GenerationStatus.ActiveSessionID = ""
		}
	}
	o.mu.Unlock()

	o.logger.Error("generation setup failed", logging.Error(err))
	o.notify(notifications.EventGenerationFailed, notifications.Payload{
		"documentName": name,
		"reason":       err.Error(),
	})
	o.emit(Event{Kind: EventStateChanged, State: StateFailed, Message: "Failed to start generation."})
}

func (o *Orchestrator) attachStream(seq int, sessionID string) {
	if err := o.stream.Attach(context.Background(), sessionID, o.streamHandlers(seq, sessionID)); err != nil {
		o.logger.Warn("progress stream unavailable; falling back to polling",
			logging.SessionID(sessionID),
			logging.Error(err))
		o.fallBackToPolling(seq)
	}
}

func (o *Orchestrator) streamHandlers(seq int, sessionID string) stream.Handlers {
	return stream.Handlers{
		OnProgress:    func(p storyboard.Progress) { o.handleProgress(seq, p) },
		OnClipArrived: func(clip storyboard.Clip) { o.handleClipArrived(seq, clip) },
		OnComplete: func(documentID string, status storyboard.JobStatus) {
			o.finishGeneration(seq, status, "")
		},
		OnError: func(message string) {
			if message == stream.LostConnectionMessage {
				o.logger.Warn("push channel lost; falling back to polling",
					logging.SessionID(sessionID))
				o.fallBackToPolling(seq)
				return
			}
			o.finishGeneration(seq, storyboard.StatusFailed, message)
		},
		Cleanup: func(sid string) { o.handleStreamCleanup(seq, sid) },
	}
}

func (o *Orchestrator) handleProgress(seq int, p storyboard.Progress) {
	o.mu.Lock()
	if seq != o.genSeq || o.doc == nil || o.doc.GenerationStatus == nil {
		o.mu.Unlock()
		return
	}
	gs := o.doc.GenerationStatus
	gs.CompletedScenes = p.Completed
	if p.Total > 0 {
		gs.TotalScenes = p.Total
	}
	if p.Status.Known() {
		gs.Status = p.Status
	}
	o.mu.Unlock()

	o.emit(Event{Kind: EventProgress, State: StateGenerating, Progress: p})
}

func (o *Orchestrator) handleClipArrived(seq int, clip storyboard.Clip) {
	if clip.Name == "" {
		clip.Name = storyboard.DefaultClipName(clip.Order)
	}

	o.mu.Lock()
	if seq != o.genSeq || o.doc == nil {
		o.mu.Unlock()
		return
	}
	o.doc.Clips = storyboard.InsertClip(o.doc.Clips, clip)
	if o.selectedClipID == "" {
		o.selectedClipID = clip.ID
	}
	docSnap, progress := o.snapshotLocked()
	o.mu.Unlock()

	if clip.ArtifactID != "" && clip.HasPayload() && o.registry != nil {
		o.registry.Store(context.Background(), clip.ArtifactID, clip.Content, &registry.Metadata{Name: clip.Name})
	}
	o.emit(Event{Kind: EventDocumentUpdated, State: StateGenerating, Document: docSnap, Progress: progress})
}

// handleStreamCleanup clears the monitoring slot only when the slot still
// points at the session the callback was created for. A fallback to polling
// or a newer job installed in the meantime stays untouched.
func (o *Orchestrator) handleStreamCleanup(seq int, sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.genSeq {
		return
	}
	if mon, ok := o.mon.(monitorStreaming); ok && mon.sessionID == sessionID {
		o.mon = notMonitoring{}
	}
}

func (o *Orchestrator) fallBackToPolling(seq int) {
	o.mu.Lock()
	if seq != o.genSeq || o.state != StateGenerating || o.doc == nil {
		o.mu.Unlock()
		return
	}
	documentID := o.doc.ID
	o.setMonitorLocked(monitorPolling{})
	o.mu.Unlock()

	o.poller.StartConditional(context.Background(), documentID, o.cfg.PollInterval(), o.pollHooks(seq, documentID))
}

func (o *Orchestrator) pollHooks(seq int, documentID string) poll.Hooks {
	return poll.Hooks{
		OnSessionAvailable: func(sessionID string) { o.switchToStream(seq, sessionID) },
		OnUpdate: func(doc *storyboard.Document, progress storyboard.Progress) {
			o.applyServerSnapshot(seq, doc)
		},
		OnComplete: func(doc *storyboard.Document) {
			o.applyServerSnapshot(seq, doc)
			o.finishGeneration(seq, terminalStatus(doc), "")
		},
	}
}

func (o *Orchestrator) switchToStream(seq int, sessionID string) {
	o.mu.Lock()
	if seq != o.genSeq || o.state != StateGenerating {
		o.mu.Unlock()
		return
	}
	o.setMonitorLocked(monitorStreaming{sessionID: sessionID})
	o.mu.Unlock()

	o.logger.Info("switching from polling to push channel", logging.SessionID(sessionID))
	o.attachStream(seq, sessionID)
}

// applyServerSnapshot replaces local state with a freshly fetched document.
// The server is authoritative while polling; clip insertion idempotency has
// already happened server-side, so known clips are never re-added.
func (o *Orchestrator) applyServerSnapshot(seq int, doc *storyboard.Document) {
	if doc == nil {
		return
	}
	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return
	}
	o.doc = doc.Clone()
	if _, ok := storyboard.FindClip(o.doc.Clips, o.selectedClipID); !ok {
		o.selectedClipID = storyboard.DefaultClipID(o.doc.Clips)
	}
	docSnap, progress := o.snapshotLocked()
	state := o.state
	o.mu.Unlock()

	o.emit(Event{Kind: EventDocumentUpdated, State: state, Document: docSnap, Progress: progress})
}

// finishGeneration settles a terminal signal exactly once: it bumps the
// generation sequence so any other observer of the same terminal condition
// no-ops, verifies against the server, then closes out the job.
func (o *Orchestrator) finishGeneration(seq int, status storyboard.JobStatus, reason string) {
	o.mu.Lock()
	if seq != o.genSeq || !o.state.Busy() {
		o.mu.Unlock()
		return
	}
	o.genSeq++
	o.setMonitorLocked(notMonitoring{})
	// Clone before unlocking: Verify reads the clip list while user edits
	// may still be mutating the live document under the mutex.
	local := o.doc.Clone()
	o.mu.Unlock()

	merged := local
	if o.verifier != nil {
		merged = o.verifier.Verify(context.Background(), local)
	}

	now := time.Now().UTC()
	o.mu.Lock()
	o.doc = merged
	if o.doc != nil {
		if o.doc.GenerationStatus == nil {
			o.doc.GenerationStatus = &storyboard.GenerationStatus{}
		}
		gs := o.doc.GenerationStatus
		gs.InProgress = false
		gs.Status = status
		gs.ActiveSessionID = ""
		gs.CompletedAt = &now
		if status != storyboard.StatusFailed {
			gs.CompletedScenes = len(o.doc.Clips)
		}
	}
	o.selectedClipID = storyboard.DefaultClipID(clipsOf(o.doc))
	switch status {
	case storyboard.StatusFailed:
		o.state = StateFailed
	case storyboard.StatusCompletedWithErrors:
		o.state = StateCompletedWithErrors
	default:
		o.state = StateCompleted
	}
	state := o.state
	selected := o.selectedClipID
	docSnap, progress := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("generation finished",
		logging.String("status", string(status)),
		logging.String("reason", reason))
	o.publishTerminal(state, docSnap, reason)
	o.emit(Event{Kind: EventDocumentUpdated, State: state, Document: docSnap, Progress: progress})
	if selected != "" {
		o.emit(Event{Kind: EventClipSelected, State: state, ClipID: selected})
	}
	o.emit(Event{Kind: EventStateChanged, State: state, Message: reason})
}

func (o *Orchestrator) publishTerminal(state State, doc *storyboard.Document, reason string) {
	name := ""
	scenes := 0
	total := 0
	if doc != nil {
		name = doc.Name
		scenes = len(doc.Clips)
		if doc.GenerationStatus != nil {
			total = doc.GenerationStatus.TotalScenes
		}
	}
	switch state {
	case StateCompleted:
		o.notify(notifications.EventGenerationCompleted, notifications.Payload{
			"documentName": name,
			"scenes":       strconv.Itoa(scenes),
		})
	case StateCompletedWithErrors:
		o.notify(notifications.EventGenerationCompletedWithErrors, notifications.Payload{
			"documentName": name,
			"scenes":       strconv.Itoa(scenes),
			"total":        strconv.Itoa(total),
		})
	case StateFailed:
		if reason == "" {
			reason = "Generation failed."
		}
		o.notify(notifications.EventGenerationFailed, notifications.Payload{
			"documentName": name,
			"reason":       reason,
		})
	}
}

func terminalStatus(doc *storyboard.Document) storyboard.JobStatus {
	if doc != nil && doc.GenerationStatus != nil && doc.GenerationStatus.Status.IsTerminal() {
		return doc.GenerationStatus.Status
	}
	return storyboard.StatusCompleted
}

func clipsOf(doc *storyboard.Document) []storyboard.Clip {
	if doc == nil {
		return nil
	}
	return doc.Clips
}
