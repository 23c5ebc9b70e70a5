package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storysync/internal/backend"
	"storysync/internal/config"
	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

func newClient(t *testing.T, baseURL string) *backend.Client {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.BaseURL = baseURL
	client, err := backend.NewClient(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestInitializeRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate/initialize" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req backend.InitializeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.NumScenes != 5 {
			t.Fatalf("expected 5 scenes, got %d", req.NumScenes)
		}
		json.NewEncoder(w).Encode(backend.InitializeResponse{
			SessionID: "session-1",
			Document:  &storyboard.Document{ID: "doc-1", Name: "Demo"},
		})
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	resp, err := client.Initialize(context.Background(), backend.InitializeRequest{Prompt: "demo", NumScenes: 5})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if resp.SessionID != "session-1" || resp.Document.ID != "doc-1" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestInitializeRejectsMissingSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.InitializeResponse{Document: &storyboard.Document{ID: "doc-1"}})
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	_, err := client.Initialize(context.Background(), backend.InitializeRequest{NumScenes: 1})
	if !errors.Is(err, backend.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no such storyboard"})
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	_, err := client.GetDocument(context.Background(), "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such storyboard") {
		t.Fatalf("expected server detail in error, got %v", err)
	}
}

func TestUnreachableServerClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newClient(t, server.URL)
	_, err := client.GetDocument(context.Background(), "doc-1")
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSlowServerClassifiedAsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	cfg := config.Default()
	cfg.Backend.BaseURL = server.URL
	cfg.Backend.RequestTimeout = 1
	client, err := backend.NewClient(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	start := time.Now()
	_, err = client.GetDocument(context.Background(), "doc-1")
	if !errors.Is(err, backend.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v after %s", err, time.Since(start))
	}
}

func TestSaveDocumentReturnsID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc storyboard.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			t.Fatalf("decode document: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": doc.ID})
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	id, err := client.SaveDocument(context.Background(), &storyboard.Document{ID: "doc-7"})
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if id != "doc-7" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestProgressURL(t *testing.T) {
	client := newClient(t, "https://backend.example")
	got := client.ProgressURL("session 1")
	if got != "wss://backend.example/api/generate/progress?session=session+1" {
		t.Fatalf("unexpected progress url %q", got)
	}
}
