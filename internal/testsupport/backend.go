package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"storysync/internal/storyboard"
)

// FakeBackend is an in-process generation backend speaking the same wire
// protocol as the real server: JSON document endpoints plus a websocket
// progress channel. Tests drive generation explicitly through the Emit
// methods.
type FakeBackend struct {
	t        testing.TB
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	documents  map[string]*storyboard.Document
	artifacts  map[string]fakeArtifact
	sessions   map[string]*fakeSession
	nextID     int
	saveCount  int
	applyClips bool
	lagFetches int
}

type fakeArtifact struct {
	content string
	name    string
}

type fakeSession struct {
	id         string
	documentID string
	started    bool

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		t:          t,
		documents:  make(map[string]*storyboard.Document),
		artifacts:  make(map[string]fakeArtifact),
		sessions:   make(map[string]*fakeSession),
		applyClips: true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate/initialize", f.handleInitialize)
	mux.HandleFunc("POST /api/generate/{session}/start", f.handleStart)
	mux.HandleFunc("GET /api/generate/progress", f.handleProgress)
	mux.HandleFunc("GET /api/storyboards/{id}", f.handleGetDocument)
	mux.HandleFunc("POST /api/storyboards", f.handleSaveDocument)
	mux.HandleFunc("DELETE /api/storyboards/{id}", f.handleDeleteDocument)
	mux.HandleFunc("GET /api/artifacts/{id}", f.handleGetArtifact)
	mux.HandleFunc("GET /api/artifacts", f.handleListArtifacts)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL for config.Backend.BaseURL.
func (f *FakeBackend) URL() string { return f.server.URL }

// SetDocument installs a server-side document.
func (f *FakeBackend) SetDocument(doc *storyboard.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc.Clone()
}

// Document returns a snapshot of a server-side document.
func (f *FakeBackend) Document(id string) *storyboard.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents[id].Clone()
}

// SetArtifact installs artifact content served by the artifact endpoints.
func (f *FakeBackend) SetArtifact(id, content, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[id] = fakeArtifact{content: content, name: name}
}

// SaveCount reports how many document saves the server has accepted.
func (f *FakeBackend) SaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCount
}

// SetApplyClips controls whether emitted clips are also written to the
// server-side document. Disabling it simulates lost server writes.
func (f *FakeBackend) SetApplyClips(apply bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyClips = apply
}

// LagZeroClips makes the next n document fetches report an empty clip list,
// simulating the server write lagging a completion signal.
func (f *FakeBackend) LagZeroClips(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lagFetches = n
}

func (f *FakeBackend) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt             string `json:"prompt"`
		NumScenes          int    `json:"numScenes"`
		ExistingDocumentID string `json:"existingDocumentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.nextID++
	sessionID := fmt.Sprintf("session-%d", f.nextID)
	documentID := req.ExistingDocumentID
	doc, ok := f.documents[documentID]
	if !ok {
		documentID = fmt.Sprintf("doc-%d", f.nextID)
		doc = &storyboard.Document{ID: documentID, Description: req.Prompt}
		f.documents[documentID] = doc
	}
	doc.GenerationStatus = &storyboard.GenerationStatus{
		InProgress:  true,
		Status:      storyboard.StatusInitializing,
		TotalScenes: req.NumScenes,
	}
	f.sessions[sessionID] = &fakeSession{id: sessionID, documentID: documentID}
	snapshot := doc.Clone()
	f.mu.Unlock()

	writeJSON(w, map[string]any{"sessionId": sessionID, "document": snapshot})
}

func (f *FakeBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	f.mu.Lock()
	session, ok := f.sessions[sessionID]
	if ok {
		session.started = true
		if doc := f.documents[session.documentID]; doc != nil && doc.GenerationStatus != nil {
			doc.GenerationStatus.Status = storyboard.StatusGenerating
			doc.GenerationStatus.ActiveSessionID = sessionID
		}
	}
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (f *FakeBackend) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	f.mu.Lock()
	session := f.sessions[sessionID]
	f.mu.Unlock()
	if session == nil {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	session.mu.Lock()
	session.conn = conn
	session.mu.Unlock()
}

func (f *FakeBackend) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	doc := f.documents[r.PathValue("id")].Clone()
	if doc != nil && f.lagFetches > 0 {
		f.lagFetches--
		doc.Clips = nil
	}
	f.mu.Unlock()

	if doc == nil {
		writeJSON(w, map[string]any{"success": false, "error": "not found"})
		return
	}
	writeJSON(w, map[string]any{"success": true, "document": doc})
}

func (f *FakeBackend) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var doc storyboard.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if doc.ID == "" {
		f.nextID++
		doc.ID = fmt.Sprintf("doc-%d", f.nextID)
	}
	f.documents[doc.ID] = doc.Clone()
	f.saveCount++
	f.mu.Unlock()

	writeJSON(w, map[string]any{"id": doc.ID})
}

func (f *FakeBackend) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	_, ok := f.documents[id]
	delete(f.documents, id)
	f.mu.Unlock()

	if !ok {
		writeJSON(w, map[string]any{"success": false, "error": "not found"})
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (f *FakeBackend) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	artifact, ok := f.artifacts[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{"success": false, "error": "not found"})
		return
	}
	writeJSON(w, map[string]any{
		"success":  true,
		"content":  artifact.content,
		"metadata": map[string]any{"name": artifact.name},
	})
}

func (f *FakeBackend) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	items := make([]map[string]any, 0, len(f.artifacts))
	for id, artifact := range f.artifacts {
		items = append(items, map[string]any{"id": id, "name": artifact.name})
	}
	f.mu.Unlock()
	writeJSON(w, map[string]any{"success": true, "artifacts": items})
}

// EmitClip delivers a clip-arrival message and, unless disabled, records the
// clip on the server-side document the way the real server does.
func (f *FakeBackend) EmitClip(sessionID string, clip storyboard.Clip, current, total int) {
	f.t.Helper()
	f.mu.Lock()
	if session := f.sessions[sessionID]; session != nil && f.applyClips {
		if doc := f.documents[session.documentID]; doc != nil {
			doc.Clips = storyboard.InsertClip(doc.Clips, clip)
			if doc.GenerationStatus != nil {
				doc.GenerationStatus.CompletedScenes = current
			}
		}
	}
	f.mu.Unlock()

	f.write(sessionID, map[string]any{
		"type": "progress",
		"data": map[string]any{
			"current": current,
			"total":   total,
			"status":  storyboard.StatusGenerating,
			"newClip": clip,
		},
	})
}

// EmitProgress delivers a progress-only message.
func (f *FakeBackend) EmitProgress(sessionID string, current, total int) {
	f.t.Helper()
	f.write(sessionID, map[string]any{
		"type": "progress",
		"data": map[string]any{
			"current": current,
			"total":   total,
			"status":  storyboard.StatusGenerating,
		},
	})
}

// EmitComplete marks the job finished server-side and delivers the terminal
// message.
func (f *FakeBackend) EmitComplete(sessionID string, status storyboard.JobStatus) {
	f.t.Helper()
	documentID := f.finishServerSide(sessionID, status)
	f.write(sessionID, map[string]any{
		"type": "progress",
		"data": map[string]any{
			"status":       status,
			"storyboardId": documentID,
		},
	})
}

// EmitFailure delivers a failed terminal message with a reason.
func (f *FakeBackend) EmitFailure(sessionID, reason string) {
	f.t.Helper()
	f.finishServerSide(sessionID, storyboard.StatusFailed)
	f.write(sessionID, map[string]any{
		"type": "progress",
		"data": map[string]any{
			"status": storyboard.StatusFailed,
			"error":  reason,
		},
	})
}

// FinishServerSide settles the server document without sending any stream
// message, the way a completion looks to a poll-only client.
func (f *FakeBackend) FinishServerSide(sessionID string, status storyboard.JobStatus) {
	f.finishServerSide(sessionID, status)
}

func (f *FakeBackend) finishServerSide(sessionID string, status storyboard.JobStatus) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[sessionID]
	if session == nil {
		return ""
	}
	if doc := f.documents[session.documentID]; doc != nil && doc.GenerationStatus != nil {
		doc.GenerationStatus.InProgress = false
		doc.GenerationStatus.Status = status
		doc.GenerationStatus.ActiveSessionID = ""
		doc.GenerationStatus.CompletedScenes = len(doc.Clips)
	}
	return session.documentID
}

// OpenSession registers a session for an existing document without going
// through initialize, for resume scenarios.
func (f *FakeBackend) OpenSession(documentID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sessionID := fmt.Sprintf("session-%d", f.nextID)
	f.sessions[sessionID] = &fakeSession{id: sessionID, documentID: documentID, started: true}
	return sessionID
}

// LastSession returns the most recently created session id.
func (f *FakeBackend) LastSession() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("session-%d", f.nextID)
}

// AddServerClip appends a clip directly to the server-side document, the way
// a poll-only client would observe generation advancing.
func (f *FakeBackend) AddServerClip(documentID string, clip storyboard.Clip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc := f.documents[documentID]; doc != nil {
		doc.Clips = storyboard.InsertClip(doc.Clips, clip)
		if doc.GenerationStatus != nil {
			doc.GenerationStatus.CompletedScenes = len(doc.Clips)
		}
	}
}

// ExposeSession flags the session id on the server document, the signal a
// conditional poller hands off on.
func (f *FakeBackend) ExposeSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session := f.sessions[sessionID]; session != nil {
		if doc := f.documents[session.documentID]; doc != nil && doc.GenerationStatus != nil {
			doc.GenerationStatus.ActiveSessionID = sessionID
		}
	}
}

// HideSession clears the session id from the server document.
func (f *FakeBackend) HideSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session := f.sessions[sessionID]; session != nil {
		if doc := f.documents[session.documentID]; doc != nil && doc.GenerationStatus != nil {
			doc.GenerationStatus.ActiveSessionID = ""
		}
	}
}

// DropStream severs the websocket without a close frame.
func (f *FakeBackend) DropStream(sessionID string) {
	f.t.Helper()
	conn := f.waitForConn(sessionID)
	conn.UnderlyingConn().Close()
	f.mu.Lock()
	if session := f.sessions[sessionID]; session != nil {
		session.mu.Lock()
		session.conn = nil
		session.mu.Unlock()
	}
	f.mu.Unlock()
}

// WaitForStream blocks until the client has attached to the session's
// progress channel.
func (f *FakeBackend) WaitForStream(sessionID string) {
	f.t.Helper()
	f.waitForConn(sessionID)
}

func (f *FakeBackend) write(sessionID string, message any) {
	f.t.Helper()
	conn := f.waitForConn(sessionID)
	if err := conn.WriteJSON(message); err != nil {
		f.t.Fatalf("write progress message: %v", err)
	}
}

func (f *FakeBackend) waitForConn(sessionID string) *websocket.Conn {
	f.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		session := f.sessions[sessionID]
		f.mu.Unlock()
		if session != nil {
			session.mu.Lock()
			conn := session.conn
			session.mu.Unlock()
			if conn != nil {
				return conn
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for progress stream on %s", sessionID)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
