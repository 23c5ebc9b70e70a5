package orchestrator

import (
	"context"
	"fmt"

	"storysync/internal/registry"
	"storysync/internal/storyboard"
)

// ClipContent resolves the displayable content for a clip: inline payload
// first, then the artifact registry, then a coalesced backend fetch. All
// callers of the same artifact share one outstanding request.
func (o *Orchestrator) ClipContent(ctx context.Context, clipID string) (string, error) {
	o.mu.Lock()
	var clip storyboard.Clip
	var ok bool
	if o.doc != nil {
		clip, ok = storyboard.FindClip(o.doc.Clips, clipID)
	}
	o.mu.Unlock()
	if !ok {
		return "", ErrClipNotFound
	}

	if clip.ArtifactID == "" {
		if clip.HasPayload() {
			return clip.Content, nil
		}
		return "", fmt.Errorf("clip %s has no content or artifact reference", clipID)
	}

	entry := o.registry.Get(ctx, clip.ArtifactID)
	if entry.Status == registry.StatusAvailable {
		return entry.Content, nil
	}

	o.registry.MarkLoading(clip.ArtifactID)
	return o.registry.TrackRequest(clip.ArtifactID, func() (string, error) {
		artifact, err := o.backend.FetchArtifact(ctx, clip.ArtifactID)
		if err != nil {
			o.registry.MarkFailed(clip.ArtifactID)
			return "", err
		}
		meta := &registry.Metadata{
			Name:       artifact.Metadata.Name,
			Transcript: artifact.Metadata.Transcript,
		}
		if artifact.Metadata.Timestamp != nil {
			meta.Timestamp = *artifact.Metadata.Timestamp
		}
		stored := o.registry.Store(ctx, clip.ArtifactID, artifact.Content, meta)
		if stored.Status != registry.StatusAvailable {
			return "", fmt.Errorf("artifact %s rejected as placeholder content", clip.ArtifactID)
		}
		return artifact.Content, nil
	})
}

// Artifacts returns the artifact listing, served from the bounded-age cache
// when fresh enough.
func (o *Orchestrator) Artifacts(ctx context.Context) ([]registry.ListItem, error) {
	if items, ok := o.registry.GetList(o.cfg.ListMaxAge()); ok {
		return items, nil
	}

	summaries, err := o.backend.ListArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]registry.ListItem, 0, len(summaries))
	for _, summary := range summaries {
		item := registry.ListItem{ID: summary.ID, Name: summary.Name}
		if summary.Timestamp != nil {
			item.Timestamp = *summary.Timestamp
		}
		items = append(items, item)
	}
	o.registry.StoreList(items)
	return items, nil
}
