package storyboard_test

import (
	"errors"
	"testing"

	"storysync/internal/storyboard"
)

func clip(id string, order int) storyboard.Clip {
	return storyboard.Clip{ID: id, Order: order, Name: id, ArtifactID: "artifact-" + id}
}

func TestInsertClipDeduplicatesByID(t *testing.T) {
	clips := []storyboard.Clip{clip("a", 0), clip("b", 1)}

	clips = storyboard.InsertClip(clips, clip("b", 1))
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips after duplicate insert, got %d", len(clips))
	}

	clips = storyboard.InsertClip(clips, clip("c", 2))
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
}

func TestInsertClipIsCommutative(t *testing.T) {
	base := []storyboard.Clip{clip("a", 0)}

	first := storyboard.InsertClip(storyboard.InsertClip(base, clip("c", 2)), clip("b", 1))
	second := storyboard.InsertClip(storyboard.InsertClip(base, clip("b", 1)), clip("c", 2))

	if !storyboard.ClipsEqual(first, second) {
		t.Fatalf("insertion order changed result: %#v vs %#v", first, second)
	}
	for i, c := range first {
		if c.Order != i {
			t.Fatalf("expected sorted contiguous order, got %#v", first)
		}
	}
}

func TestRemoveClipRederivesOrder(t *testing.T) {
	clips := []storyboard.Clip{clip("a", 0), clip("b", 1), clip("c", 2)}

	clips = storyboard.RemoveClip(clips, "b")
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(clips))
	}
	if err := storyboard.ValidateOrder(clips); err != nil {
		t.Fatalf("order not contiguous after removal: %v", err)
	}
	if clips[1].ID != "c" || clips[1].Order != 1 {
		t.Fatalf("expected c to move to order 1, got %#v", clips[1])
	}
}

func TestValidateOrder(t *testing.T) {
	cases := []struct {
		name    string
		clips   []storyboard.Clip
		wantErr bool
	}{
		{"empty", nil, false},
		{"contiguous", []storyboard.Clip{clip("a", 0), clip("b", 1)}, false},
		{"gap", []storyboard.Clip{clip("a", 0), clip("b", 2)}, true},
		{"duplicate", []storyboard.Clip{clip("a", 1), clip("b", 1)}, true},
		{"offset", []storyboard.Clip{clip("a", 1), clip("b", 2)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := storyboard.ValidateOrder(tc.clips)
			if tc.wantErr {
				if !errors.Is(err, storyboard.ErrClipOrder) {
					t.Fatalf("expected ErrClipOrder, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultClipID(t *testing.T) {
	clips := []storyboard.Clip{clip("b", 3), clip("a", 1), clip("c", 2)}
	if got := storyboard.DefaultClipID(clips); got != "a" {
		t.Fatalf("expected lowest-order clip a, got %q", got)
	}
	if got := storyboard.DefaultClipID(nil); got != "" {
		t.Fatalf("expected empty for no clips, got %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := &storyboard.Document{
		ID:    "doc-1",
		Name:  "Original",
		Clips: []storyboard.Clip{clip("a", 0)},
		GenerationStatus: &storyboard.GenerationStatus{
			InProgress:  true,
			TotalScenes: 3,
			Status:      storyboard.StatusGenerating,
		},
	}

	clone := doc.Clone()
	clone.Clips[0].Name = "changed"
	clone.GenerationStatus.InProgress = false

	if doc.Clips[0].Name != "a" {
		t.Fatal("clone shares clip storage with original")
	}
	if !doc.GenerationStatus.InProgress {
		t.Fatal("clone shares generation status with original")
	}
}
