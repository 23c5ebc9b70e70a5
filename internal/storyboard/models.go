package storyboard

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a generation job as reported by the
// backend. It is a view over the document's generation status, never persisted
// independently.
type JobStatus string

const (
	StatusInitializing        JobStatus = "initializing"
	StatusGenerating          JobStatus = "generating"
	StatusInProgress          JobStatus = "in_progress"
	StatusCompleted           JobStatus = "completed"
	StatusCompletedWithErrors JobStatus = "completed_with_errors"
	StatusFailed              JobStatus = "failed"
)

var terminalStatuses = map[JobStatus]struct{}{
	StatusCompleted:           {},
	StatusCompletedWithErrors: {},
	StatusFailed:              {},
}

// IsTerminal reports whether the status ends the job.
func (s JobStatus) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Known reports whether the status is one the subsystem understands. Unknown
// statuses from newer backends are tolerated as non-terminal progress.
func (s JobStatus) Known() bool {
	switch s {
	case StatusInitializing, StatusGenerating, StatusInProgress,
		StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// Clip is one generated scene belonging to a document. The ID is
// client-assigned and stable across saves. A clip is either self-contained
// (Content present) or a pointer (ArtifactID present, content fetched lazily).
type Clip struct {
	ID              string     `json:"id"`
	Order           int        `json:"order"`
	Name            string     `json:"name"`
	Content         string     `json:"content,omitempty"`
	ArtifactID      string     `json:"artifactId,omitempty"`
	Prompt          string     `json:"prompt,omitempty"`
	DurationSeconds float64    `json:"durationSeconds"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// HasPayload reports whether the clip satisfies the content-or-reference
// invariant.
func (c Clip) HasPayload() bool {
	return strings.TrimSpace(c.Content) != "" || strings.TrimSpace(c.ArtifactID) != ""
}

// ScenePlan captures one entry of the generation plan so an interrupted job
// can resume with the original prompts.
type ScenePlan struct {
	Name            string  `json:"name"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// GenerationStatus records the progress of the job currently attached to a
// document. ActiveSessionID is empty until the backend assigns a push channel.
type GenerationStatus struct {
	InProgress        bool       `json:"inProgress"`
	CompletedScenes   int        `json:"completedScenes"`
	TotalScenes       int        `json:"totalScenes"`
	Status            JobStatus  `json:"status"`
	ActiveSessionID   string     `json:"activeSessionId,omitempty"`
	CurrentSceneIndex *int       `json:"currentSceneIndex,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	PausedAt          *time.Time `json:"pausedAt,omitempty"`
	PausedReason      string     `json:"pausedReason,omitempty"`
}

// Progress is a point-in-time view of a job used by progress callbacks.
type Progress struct {
	Completed int
	Total     int
	Status    JobStatus
}

// Document is the persisted storyboard record.
type Document struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Clips            []Clip            `json:"clips"`
	GenerationStatus *GenerationStatus `json:"generationStatus,omitempty"`
	OriginalScenes   []ScenePlan       `json:"originalScenes,omitempty"`
}

// Generating reports whether the document carries an in-progress generation
// job.
func (d *Document) Generating() bool {
	return d != nil && d.GenerationStatus != nil && d.GenerationStatus.InProgress
}

// ActiveSessionID returns the push channel identifier for the in-progress job,
// or empty when none has been assigned yet.
func (d *Document) ActiveSessionID() string {
	if d == nil || d.GenerationStatus == nil {
		return ""
	}
	return strings.TrimSpace(d.GenerationStatus.ActiveSessionID)
}

// Progress summarizes the document's generation status for callbacks.
func (d *Document) Progress() Progress {
	if d == nil || d.GenerationStatus == nil {
		return Progress{}
	}
	return Progress{
		Completed: d.GenerationStatus.CompletedScenes,
		Total:     d.GenerationStatus.TotalScenes,
		Status:    d.GenerationStatus.Status,
	}
}

// Clone returns a deep copy so single-writer updates never alias snapshots
// handed to observers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Clips != nil {
		clone.Clips = make([]Clip, len(d.Clips))
		copy(clone.Clips, d.Clips)
		for i := range clone.Clips {
			clone.Clips[i].CreatedAt = copyTime(d.Clips[i].CreatedAt)
		}
	}
	if d.OriginalScenes != nil {
		clone.OriginalScenes = make([]ScenePlan, len(d.OriginalScenes))
		copy(clone.OriginalScenes, d.OriginalScenes)
	}
	if d.GenerationStatus != nil {
		status := *d.GenerationStatus
		if d.GenerationStatus.CurrentSceneIndex != nil {
			idx := *d.GenerationStatus.CurrentSceneIndex
			status.CurrentSceneIndex = &idx
		}
		status.StartedAt = copyTime(d.GenerationStatus.StartedAt)
		status.CompletedAt = copyTime(d.GenerationStatus.CompletedAt)
		status.PausedAt = copyTime(d.GenerationStatus.PausedAt)
		clone.GenerationStatus = &status
	}
	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
