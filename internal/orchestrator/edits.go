package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"storysync/internal/storyboard"
)

// RenameDocument sets the document title and schedules an autosave.
func (o *Orchestrator) RenameDocument(name string) error {
	return o.edit(func(doc *storyboard.Document) error {
		doc.Name = name
		return nil
	})
}

// RenameClip sets a clip's display name and schedules an autosave.
func (o *Orchestrator) RenameClip(clipID, name string) error {
	return o.edit(func(doc *storyboard.Document) error {
		for i := range doc.Clips {
			if doc.Clips[i].ID == clipID {
				doc.Clips[i].Name = name
				return nil
			}
		}
		return ErrClipNotFound
	})
}

// MoveClip repositions a clip to the given slot and renumbers the list.
func (o *Orchestrator) MoveClip(clipID string, newOrder int) error {
	return o.edit(func(doc *storyboard.Document) error {
		sorted := storyboard.NormalizeOrder(doc.Clips)
		from := -1
		for i, clip := range sorted {
			if clip.ID == clipID {
				from = i
				break
			}
		}
		if from == -1 {
			return ErrClipNotFound
		}
		if newOrder < 0 {
			newOrder = 0
		}
		if newOrder > len(sorted)-1 {
			newOrder = len(sorted) - 1
		}
		moved := sorted[from]
		sorted = append(sorted[:from], sorted[from+1:]...)
		sorted = append(sorted[:newOrder], append([]storyboard.Clip{moved}, sorted[newOrder:]...)...)
		// Renumber positionally; re-sorting here would undo the move
		// because the spliced clips still carry their old order values.
		for i := range sorted {
			sorted[i].Order = i
		}
		doc.Clips = sorted
		return nil
	})
}

// DeleteClip removes a clip, renumbers the remainder, and drops the clip's
// artifact from the cache when nothing else references it.
func (o *Orchestrator) DeleteClip(clipID string) error {
	var orphanedArtifact string
	err := o.edit(func(doc *storyboard.Document) error {
		removed, ok := storyboard.FindClip(doc.Clips, clipID)
		if !ok {
			return ErrClipNotFound
		}
		doc.Clips = storyboard.RemoveClip(doc.Clips, clipID)
		if removed.ArtifactID != "" {
			orphanedArtifact = removed.ArtifactID
			for _, clip := range doc.Clips {
				if clip.ArtifactID == removed.ArtifactID {
					orphanedArtifact = ""
					break
				}
			}
		}
		if o.selectedClipID == clipID {
			o.selectedClipID = storyboard.DefaultClipID(doc.Clips)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if orphanedArtifact != "" && o.registry != nil {
		o.registry.Clear(context.Background(), orphanedArtifact)
	}
	return nil
}

// AddClip appends a user-authored clip after the last scene. A missing id is
// assigned; a missing name gets the default scene label.
func (o *Orchestrator) AddClip(clip storyboard.Clip) error {
	return o.edit(func(doc *storyboard.Document) error {
		if clip.ID == "" {
			clip.ID = uuid.NewString()
		}
		clip.Order = storyboard.MaxOrder(doc.Clips) + 1
		if clip.Name == "" {
			clip.Name = storyboard.DefaultClipName(clip.Order)
		}
		doc.Clips = storyboard.InsertClip(doc.Clips, clip)
		return nil
	})
}

// SelectClip marks a clip as the active one in the UI. Selection is
// transient state and does not schedule a save.
func (o *Orchestrator) SelectClip(clipID string) error {
	o.mu.Lock()
	if o.doc == nil {
		o.mu.Unlock()
		return ErrNoDocument
	}
	if _, ok := storyboard.FindClip(o.doc.Clips, clipID); !ok {
		o.mu.Unlock()
		return ErrClipNotFound
	}
	o.selectedClipID = clipID
	state := o.state
	o.mu.Unlock()

	o.emit(Event{Kind: EventClipSelected, State: state, ClipID: clipID})
	return nil
}

// FlushPendingSave persists any debounced edit immediately.
func (o *Orchestrator) FlushPendingSave(ctx context.Context) error {
	if o.saver == nil {
		return nil
	}
	return o.saver.Flush(ctx)
}

// edit applies one mutation to the document under the lock, then routes the
// result through the autosave debouncer and notifies observers.
func (o *Orchestrator) edit(mutate func(doc *storyboard.Document) error) error {
	o.mu.Lock()
	if o.doc == nil {
		o.mu.Unlock()
		return ErrNoDocument
	}
	if err := mutate(o.doc); err != nil {
		o.mu.Unlock()
		return err
	}
	docSnap, progress := o.snapshotLocked()
	state := o.state
	o.mu.Unlock()

	if o.saver != nil {
		o.saver.Observe(docSnap)
	}
	o.emit(Event{Kind: EventDocumentUpdated, State: state, Document: docSnap, Progress: progress})
	return nil
}
