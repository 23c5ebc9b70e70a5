package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storysync/internal/config"
	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

const userAgent = "storysync/0.1"

// Client talks to the generation backend over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	logger  *slog.Logger
	longTO  time.Duration
	shortTO time.Duration
}

// NewClient builds a backend client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		// Per-call deadlines come from contexts so generation calls can run
		// long while document calls stay tight.
		http:    &http.Client{},
		logger:  logging.NewComponentLogger(logger, "backend"),
		longTO:  cfg.GenerationTimeout(),
		shortTO: cfg.RequestTimeout(),
	}, nil
}

// Initialize creates (or resumes) a generation job and returns the session id
// plus the initial document.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.longTO)
	defer cancel()

	var resp InitializeResponse
	if err := c.postJSON(ctx, "/api/generate/initialize", req, &resp); err != nil {
		return nil, Wrap(Classify(err), "backend", "initialize", "", err)
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return nil, Wrap(ErrValidation, "backend", "initialize", "response missing session id", nil)
	}
	if resp.Document == nil {
		return nil, Wrap(ErrValidation, "backend", "initialize", "response missing document", nil)
	}
	return &resp, nil
}

// Start begins executing an initialized job.
func (c *Client) Start(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.longTO)
	defer cancel()

	path := "/api/generate/" + url.PathEscape(sessionID) + "/start"
	if err := c.postJSON(ctx, path, struct{}{}, nil); err != nil {
		return Wrap(Classify(err), "backend", "start", "", err)
	}
	return nil
}

// GetDocument fetches the authoritative server document.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*storyboard.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	var envelope documentEnvelope
	path := "/api/storyboards/" + url.PathEscape(documentID)
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		return nil, Wrap(Classify(err), "backend", "get document", "", err)
	}
	if !envelope.Success || envelope.Document == nil {
		return nil, Wrap(ErrNotFound, "backend", "get document", envelope.Error, nil)
	}
	return envelope.Document, nil
}

// SaveDocument persists the document and returns its server id.
func (c *Client) SaveDocument(ctx context.Context, doc *storyboard.Document) (string, error) {
	if doc == nil {
		return "", Wrap(ErrValidation, "backend", "save document", "nil document", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	var envelope saveEnvelope
	if err := c.postJSON(ctx, "/api/storyboards", doc, &envelope); err != nil {
		return "", Wrap(Classify(err), "backend", "save document", "", err)
	}
	if envelope.ID == "" {
		return "", Wrap(ErrValidation, "backend", "save document", "response missing id", nil)
	}
	return envelope.ID, nil
}

// DeleteDocument removes the document from the server.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	endpoint := c.endpoint("/api/storyboards/" + url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return Wrap(ErrValidation, "backend", "delete document", "", err)
	}
	var envelope deleteEnvelope
	if err := c.do(req, &envelope); err != nil {
		return Wrap(Classify(err), "backend", "delete document", "", err)
	}
	if !envelope.Success {
		return Wrap(ErrTransient, "backend", "delete document", envelope.Error, nil)
	}
	return nil
}

// FetchArtifact retrieves generated artifact content by id.
func (c *Client) FetchArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	var envelope artifactEnvelope
	path := "/api/artifacts/" + url.PathEscape(artifactID)
	if err := c.getJSON(ctx, path, &envelope); err != nil {
		return nil, Wrap(Classify(err), "backend", "fetch artifact", "", err)
	}
	if !envelope.Success {
		return nil, Wrap(ErrNotFound, "backend", "fetch artifact", envelope.Error, nil)
	}
	return &Artifact{ID: artifactID, Content: envelope.Content, Metadata: envelope.Metadata}, nil
}

// ListArtifacts enumerates stored artifacts.
func (c *Client) ListArtifacts(ctx context.Context) ([]ArtifactSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	var envelope artifactListEnvelope
	if err := c.getJSON(ctx, "/api/artifacts", &envelope); err != nil {
		return nil, Wrap(Classify(err), "backend", "list artifacts", "", err)
	}
	if !envelope.Success {
		return nil, Wrap(ErrTransient, "backend", "list artifacts", envelope.Error, nil)
	}
	return envelope.Artifacts, nil
}

// ProgressURL returns the websocket endpoint for a session's push channel.
func (c *Client) ProgressURL(sessionID string) string {
	ws := *c.base
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path = "/api/generate/progress"
	ws.RawQuery = url.Values{"session": []string{sessionID}}.Encode()
	return ws.String()
}

func (c *Client) endpoint(path string) string {
	ref := url.URL{Path: path}
	return c.base.ResolveReference(&ref).String()
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
