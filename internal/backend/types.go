package backend

import (
	"time"

	"storysync/internal/storyboard"
)

// InitializeRequest asks the backend to create or resume a generation job.
type InitializeRequest struct {
	Prompt             string `json:"prompt"`
	Provider           string `json:"provider,omitempty"`
	Model              string `json:"model,omitempty"`
	NumScenes          int    `json:"numScenes"`
	ExistingDocumentID string `json:"existingDocumentId,omitempty"`
}

// InitializeResponse returns the session correlating the run plus the initial
// document, which may not contain any clip yet.
type InitializeResponse struct {
	SessionID string               `json:"sessionId"`
	Document  *storyboard.Document `json:"document"`
}

// ProgressMessage is one discrete message from the progress channel.
type ProgressMessage struct {
	Type string       `json:"type"`
	Data ProgressData `json:"data"`
}

// ProgressData carries the per-message progress payload. NewClip is present
// only on clip-arrival messages.
type ProgressData struct {
	Current      int                  `json:"current"`
	Total        int                  `json:"total"`
	Status       storyboard.JobStatus `json:"status"`
	NewClip      *storyboard.Clip     `json:"newClip,omitempty"`
	StoryboardID string               `json:"storyboardId,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// ArtifactMetadata describes a stored artifact.
type ArtifactMetadata struct {
	Name       string     `json:"name,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
}

// Artifact is the fetched generated content plus its metadata.
type Artifact struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Metadata ArtifactMetadata `json:"metadata"`
}

// ArtifactSummary is one row of the artifact listing.
type ArtifactSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type documentEnvelope struct {
	Success  bool                 `json:"success"`
	Document *storyboard.Document `json:"document"`
	Error    string               `json:"error,omitempty"`
}

type saveEnvelope struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type deleteEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type artifactEnvelope struct {
	Success  bool             `json:"success"`
	Content  string           `json:"content"`
	Metadata ArtifactMetadata `json:"metadata"`
	Error    string           `json:"error,omitempty"`
}

type artifactListEnvelope struct {
	Success   bool              `json:"success"`
	Artifacts []ArtifactSummary `json:"artifacts"`
	Error     string            `json:"error,omitempty"`
}
