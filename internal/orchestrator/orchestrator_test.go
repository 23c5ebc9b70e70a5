package orchestrator_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"storysync/internal/autosave"
	"storysync/internal/backend"
	"storysync/internal/logging"
	"storysync/internal/notifications"
	"storysync/internal/orchestrator"
	"storysync/internal/poll"
	"storysync/internal/reconcile"
	"storysync/internal/registry"
	"storysync/internal/storyboard"
	"storysync/internal/stream"
	"storysync/internal/testsupport"
)

type harness struct {
	orch      *orchestrator.Orchestrator
	fake      *testsupport.FakeBackend
	collector *notifications.Collector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(fake.URL()))
	logger := logging.NewNop()

	client, err := backend.NewClient(cfg, logger)
	if err != nil {
		t.Fatalf("backend.NewClient: %v", err)
	}
	collector := &notifications.Collector{}
	orch := orchestrator.New(orchestrator.Deps{
		Backend:  client,
		Stream:   stream.NewClient(client, cfg.DialTimeout(), logger),
		Poller:   poll.NewController(client, logger),
		Verifier: reconcile.NewEngine(client, cfg.Sync.ReconcileMaxRetries, cfg.ReconcileBackoff(), logger),
		Saver:    autosave.NewDebouncer(client, cfg.AutosaveQuiet(), logger),
		Registry: registry.New(cfg.ArtifactCache.MinContentBytes, nil, logger),
		Notifier: collector,
		Config:   cfg,
		Logger:   logger,
	})
	t.Cleanup(orch.Reset)
	return &harness{orch: orch, fake: fake, collector: collector}
}

func (h *harness) waitForState(t *testing.T, want orchestrator.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.orch.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, h.orch.State())
}

func (h *harness) waitForClips(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if doc := h.orch.Document(); doc != nil && len(doc.Clips) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clips", want)
}

func (h *harness) notificationCount(event notifications.Event) int {
	count := 0
	for _, collected := range h.collector.Events() {
		if collected.Event == event {
			count++
		}
	}
	return count
}

func generatedClip(id string, order int) storyboard.Clip {
	return storyboard.Clip{
		ID:         id,
		Order:      order,
		Name:       storyboard.DefaultClipName(order),
		ArtifactID: "artifact-" + id,
		Content:    strings.Repeat("scene content ", 10),
	}
}

func TestGenerateStreamsToCompletion(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{
		Prompt:    "a fox jumping over the lazy dog",
		NumScenes: 3,
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	h.fake.WaitForStream(session)
	for i := 0; i < 3; i++ {
		h.fake.EmitClip(session, generatedClip(string(rune('a'+i)), i), i+1, 3)
	}
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	h.waitForState(t, orchestrator.StateCompleted)
	doc := h.orch.Document()
	if len(doc.Clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(doc.Clips))
	}
	if doc.Generating() {
		t.Fatal("document still reports in-progress after completion")
	}
	if selected, ok := h.orch.SelectedClip(); !ok || selected.Order != 0 {
		t.Fatalf("expected lowest-order clip selected, got %+v ok=%v", selected, ok)
	}
	if got := h.notificationCount(notifications.EventGenerationCompleted); got != 1 {
		t.Fatalf("expected exactly one completion notification, got %d", got)
	}
}

func TestDuplicateClipDeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "dupes", NumScenes: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	clip := generatedClip("a", 0)
	h.fake.EmitClip(session, clip, 1, 2)
	h.fake.EmitClip(session, clip, 1, 2)
	h.fake.EmitClip(session, generatedClip("b", 1), 2, 2)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	h.waitForState(t, orchestrator.StateCompleted)
	if doc := h.orch.Document(); len(doc.Clips) != 2 {
		t.Fatalf("expected 2 clips after duplicate delivery, got %d", len(doc.Clips))
	}
}

func TestGenerationFailurePreservesPartialResults(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "doomed", NumScenes: 3}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	h.fake.EmitClip(session, generatedClip("a", 0), 1, 3)
	h.fake.EmitFailure(session, "provider quota exceeded")

	h.waitForState(t, orchestrator.StateFailed)
	doc := h.orch.Document()
	if len(doc.Clips) != 1 {
		t.Fatalf("partial results lost: %d clips", len(doc.Clips))
	}
	if got := h.notificationCount(notifications.EventGenerationFailed); got != 1 {
		t.Fatalf("expected one failure notification, got %d", got)
	}
}

func TestLoadResumesWithPollingThenSwitchesToPush(t *testing.T) {
	h := newHarness(t)

	doc := &storyboard.Document{
		ID:   "doc-resume",
		Name: "Resumed Board",
		Clips: []storyboard.Clip{
			generatedClip("a", 0),
			generatedClip("b", 1),
		},
		GenerationStatus: &storyboard.GenerationStatus{
			InProgress:      true,
			CompletedScenes: 2,
			TotalScenes:     3,
			Status:          storyboard.StatusInProgress,
		},
	}
	h.fake.SetDocument(doc)

	if err := h.orch.Load(t.Context(), "doc-resume"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	// Give the conditional poller a few ticks, then surface the session id.
	time.Sleep(60 * time.Millisecond)
	session := h.fake.OpenSession("doc-resume")
	h.fake.ExposeSession(session)

	h.fake.WaitForStream(session)
	// A re-delivered known clip plus the missing third one.
	h.fake.EmitClip(session, generatedClip("b", 1), 2, 3)
	h.fake.EmitClip(session, generatedClip("c", 2), 3, 3)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	h.waitForState(t, orchestrator.StateCompleted)
	if doc := h.orch.Document(); len(doc.Clips) != 3 {
		t.Fatalf("expected 3 clips after hand-off, got %d", len(doc.Clips))
	}
}

func TestStreamDropFallsBackToPolling(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "flaky network", NumScenes: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	h.fake.EmitClip(session, generatedClip("a", 0), 1, 2)
	h.waitForClips(t, 1)

	// Sever the push channel and hide the session id so the fallback keeps
	// polling instead of re-attaching.
	h.fake.HideSession(session)
	h.fake.DropStream(session)

	documentID := h.orch.Document().ID
	h.fake.AddServerClip(documentID, generatedClip("b", 1))
	h.waitForClips(t, 2)

	h.fake.FinishServerSide(session, storyboard.StatusCompleted)
	h.waitForState(t, orchestrator.StateCompleted)
	if got := h.notificationCount(notifications.EventGenerationCompleted); got != 1 {
		t.Fatalf("expected exactly one completion notification, got %d", got)
	}
}

func TestLoadReinitializesJobStuckInInitializing(t *testing.T) {
	h := newHarness(t)

	h.fake.SetDocument(&storyboard.Document{
		ID:          "doc-crashed",
		Description: "a storyboard that never started",
		GenerationStatus: &storyboard.GenerationStatus{
			InProgress:  true,
			TotalScenes: 2,
			Status:      storyboard.StatusInitializing,
		},
	})

	if err := h.orch.Load(t.Context(), "doc-crashed"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	h.fake.WaitForStream(session)
	h.fake.EmitClip(session, generatedClip("a", 0), 1, 2)
	h.fake.EmitClip(session, generatedClip("b", 1), 2, 2)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	h.waitForState(t, orchestrator.StateCompleted)
	if doc := h.orch.Document(); len(doc.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(doc.Clips))
	}
}

func TestReconcilePushesClipLostInTransit(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "lost write", NumScenes: 5}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	for i := 0; i < 4; i++ {
		h.fake.EmitClip(session, generatedClip(string(rune('a'+i)), i), i+1, 5)
	}
	// The fifth clip reaches the client but the server write is lost.
	h.fake.SetApplyClips(false)
	h.fake.EmitClip(session, generatedClip("e", 4), 5, 5)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	h.waitForState(t, orchestrator.StateCompleted)
	doc := h.orch.Document()
	if len(doc.Clips) != 5 {
		t.Fatalf("expected union of 5 clips locally, got %d", len(doc.Clips))
	}
	server := h.fake.Document(doc.ID)
	if len(server.Clips) != 5 {
		t.Fatalf("expected repair save to restore 5 clips server-side, got %d", len(server.Clips))
	}
}

func TestEditsDuringVerificationDoNotCorruptDocument(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "busy hands", NumScenes: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	session := h.fake.LastSession()
	h.fake.EmitClip(session, generatedClip("a", 0), 1, 2)
	h.fake.EmitClip(session, generatedClip("b", 1), 2, 2)
	h.waitForClips(t, 2)

	// Stretch verification across several retry ticks so user edits overlap
	// the post-completion server check.
	h.fake.LagZeroClips(2)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)

	stop := make(chan struct{})
	editsDone := make(chan struct{})
	go func() {
		defer close(editsDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = h.orch.RenameClip("a", fmt.Sprintf("Scene %d", i))
			time.Sleep(time.Millisecond)
		}
	}()

	h.waitForState(t, orchestrator.StateCompleted)
	close(stop)
	<-editsDone

	doc := h.orch.Document()
	if len(doc.Clips) != 2 {
		t.Fatalf("expected 2 clips after concurrent edits, got %d", len(doc.Clips))
	}
	if err := storyboard.ValidateOrder(doc.Clips); err != nil {
		t.Fatalf("clip order corrupted: %v", err)
	}
}

func TestRenameSchedulesAutosave(t *testing.T) {
	h := newHarness(t)

	h.fake.SetDocument(&storyboard.Document{
		ID:    "doc-1",
		Name:  "Old Title",
		Clips: []storyboard.Clip{generatedClip("a", 0)},
	})
	if err := h.orch.Load(t.Context(), "doc-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := h.orch.RenameDocument("New Title"); err != nil {
		t.Fatalf("RenameDocument: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.fake.SaveCount() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if server := h.fake.Document("doc-1"); server.Name != "New Title" {
		t.Fatalf("autosave never persisted the rename, server has %q", server.Name)
	}
}

func TestEditOperations(t *testing.T) {
	h := newHarness(t)

	h.fake.SetDocument(&storyboard.Document{
		ID:   "doc-1",
		Name: "Board",
		Clips: []storyboard.Clip{
			generatedClip("a", 0),
			generatedClip("b", 1),
			generatedClip("c", 2),
		},
	})
	if err := h.orch.Load(t.Context(), "doc-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := h.orch.MoveClip("c", 0); err != nil {
		t.Fatalf("MoveClip: %v", err)
	}
	doc := h.orch.Document()
	if doc.Clips[0].ID != "c" || doc.Clips[0].Order != 0 {
		t.Fatalf("move failed: %+v", doc.Clips)
	}

	if err := h.orch.DeleteClip("b"); err != nil {
		t.Fatalf("DeleteClip: %v", err)
	}
	doc = h.orch.Document()
	if len(doc.Clips) != 2 {
		t.Fatalf("expected 2 clips after delete, got %d", len(doc.Clips))
	}
	for i, clip := range doc.Clips {
		if clip.Order != i {
			t.Fatalf("orders not renumbered after delete: %+v", doc.Clips)
		}
	}

	if err := h.orch.AddClip(storyboard.Clip{Content: strings.Repeat("x", 100)}); err != nil {
		t.Fatalf("AddClip: %v", err)
	}
	doc = h.orch.Document()
	if len(doc.Clips) != 3 {
		t.Fatalf("expected 3 clips after add, got %d", len(doc.Clips))
	}
	added := doc.Clips[2]
	if added.ID == "" || added.Name == "" || added.Order != 2 {
		t.Fatalf("added clip missing defaults: %+v", added)
	}

	if err := h.orch.DeleteClip("missing"); err != orchestrator.ErrClipNotFound {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestSelectClipEmitsEvent(t *testing.T) {
	h := newHarness(t)

	h.fake.SetDocument(&storyboard.Document{
		ID:    "doc-1",
		Clips: []storyboard.Clip{generatedClip("a", 0), generatedClip("b", 1)},
	})
	if err := h.orch.Load(t.Context(), "doc-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	selected := make(chan string, 4)
	cancel := h.orch.Subscribe(func(evt orchestrator.Event) {
		if evt.Kind == orchestrator.EventClipSelected {
			selected <- evt.ClipID
		}
	})
	defer cancel()

	if err := h.orch.SelectClip("b"); err != nil {
		t.Fatalf("SelectClip: %v", err)
	}
	select {
	case id := <-selected:
		if id != "b" {
			t.Fatalf("selected wrong clip %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("no selection event")
	}

	if err := h.orch.SelectClip("missing"); err != orchestrator.ErrClipNotFound {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestClipContentFetchesThroughRegistry(t *testing.T) {
	h := newHarness(t)

	content := strings.Repeat("animation frames ", 20)
	h.fake.SetArtifact("artifact-a", content, "Scene 1")
	h.fake.SetDocument(&storyboard.Document{
		ID:    "doc-1",
		Clips: []storyboard.Clip{{ID: "a", Order: 0, Name: "Scene 1", ArtifactID: "artifact-a"}},
	})
	if err := h.orch.Load(t.Context(), "doc-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := h.orch.ClipContent(t.Context(), "a")
	if err != nil {
		t.Fatalf("ClipContent: %v", err)
	}
	if got != content {
		t.Fatalf("unexpected content %q", got[:20])
	}
	// Second read is served from the registry.
	if got, err = h.orch.ClipContent(t.Context(), "a"); err != nil || got != content {
		t.Fatalf("cached read failed: %v", err)
	}
}

func TestGenerateWhileBusyIsRejected(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "first", NumScenes: 1}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "second", NumScenes: 1}); err != orchestrator.ErrGenerationActive {
		t.Fatalf("expected ErrGenerationActive, got %v", err)
	}

	session := h.fake.LastSession()
	h.fake.EmitClip(session, generatedClip("a", 0), 1, 1)
	h.fake.EmitComplete(session, storyboard.StatusCompleted)
	h.waitForState(t, orchestrator.StateCompleted)
}

func TestResetReturnsToIdle(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.Generate(t.Context(), orchestrator.GenerateRequest{Prompt: "abandoned", NumScenes: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.waitForState(t, orchestrator.StateGenerating)
	h.fake.WaitForStream(h.fake.LastSession())

	h.orch.Reset()
	if state := h.orch.State(); state != orchestrator.StateIdle {
		t.Fatalf("expected idle after reset, got %s", state)
	}
	if doc := h.orch.Document(); doc != nil {
		t.Fatal("document survived reset")
	}
}
