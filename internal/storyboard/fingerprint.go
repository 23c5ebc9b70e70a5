package storyboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// persistedClip mirrors Clip restricted to fields that matter for
// persistence. Creation timestamps are excluded so re-renders that merely
// refresh them do not look like edits.
type persistedClip struct {
	ID              string  `json:"id"`
	Order           int     `json:"order"`
	Name            string  `json:"name"`
	Content         string  `json:"content"`
	ArtifactID      string  `json:"artifactId"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type persistedDocument struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Clips       []persistedClip `json:"clips"`
}

// Fingerprint computes a stable hash over the fields of the document that
// matter for persistence. Transient UI state and generation bookkeeping do
// not contribute, so a fingerprint change always means a save is worthwhile.
func Fingerprint(d *Document) string {
	if d == nil {
		return ""
	}
	view := persistedDocument{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Clips:       make([]persistedClip, 0, len(d.Clips)),
	}
	for _, clip := range sortClips(d.Clips) {
		view.Clips = append(view.Clips, persistedClip{
			ID:              clip.ID,
			Order:           clip.Order,
			Name:            clip.Name,
			Content:         clip.Content,
			ArtifactID:      clip.ArtifactID,
			Prompt:          clip.Prompt,
			DurationSeconds: clip.DurationSeconds,
		})
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
