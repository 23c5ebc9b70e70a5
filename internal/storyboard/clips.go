package storyboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrClipOrder indicates the clip list violates the contiguous-order
// invariant.
var ErrClipOrder = errors.New("clip order invalid")

// InsertClip adds clip to the list unless a clip with the same ID already
// exists, then re-sorts by order. Insertion is commutative-safe: inserting the
// same clip twice, in any order relative to other inserts, yields the same
// final list.
func InsertClip(clips []Clip, clip Clip) []Clip {
	for _, existing := range clips {
		if existing.ID == clip.ID {
			return sortClips(clips)
		}
	}
	return sortClips(append(clips, clip))
}

// FindClip returns the clip with the given ID if present.
func FindClip(clips []Clip, id string) (Clip, bool) {
	for _, clip := range clips {
		if clip.ID == id {
			return clip, true
		}
	}
	return Clip{}, false
}

// RemoveClip deletes the clip with the given ID and re-derives order for the
// remaining clips so the sequence stays contiguous.
func RemoveClip(clips []Clip, id string) []Clip {
	kept := make([]Clip, 0, len(clips))
	for _, clip := range clips {
		if clip.ID != id {
			kept = append(kept, clip)
		}
	}
	return NormalizeOrder(kept)
}

// NormalizeOrder sorts by the current order values and rewrites them as
// 0..N-1.
func NormalizeOrder(clips []Clip) []Clip {
	sorted := sortClips(clips)
	for i := range sorted {
		sorted[i].Order = i
	}
	return sorted
}

// ValidateOrder checks that clip order values form a contiguous 0..N-1
// sequence with no duplicates. Gaps and duplicates are reported, not silently
// repaired.
func ValidateOrder(clips []Clip) error {
	seen := make(map[int]string, len(clips))
	for _, clip := range clips {
		if prev, dup := seen[clip.Order]; dup {
			return fmt.Errorf("%w: clips %s and %s share order %d", ErrClipOrder, prev, clip.ID, clip.Order)
		}
		seen[clip.Order] = clip.ID
	}
	for i := range clips {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("%w: missing order %d in %d clips", ErrClipOrder, i, len(clips))
		}
	}
	return nil
}

// ClipsEqual reports structural equality of two clip lists over the persisted
// fields, ignoring creation timestamps.
func ClipsEqual(a, b []Clip) bool {
	if len(a) != len(b) {
		return false
	}
	left := sortClips(a)
	right := sortClips(b)
	for i := range left {
		if !clipEqual(left[i], right[i]) {
			return false
		}
	}
	return true
}

func clipEqual(a, b Clip) bool {
	return a.ID == b.ID &&
		a.Order == b.Order &&
		a.Name == b.Name &&
		a.Content == b.Content &&
		a.ArtifactID == b.ArtifactID &&
		a.Prompt == b.Prompt &&
		a.DurationSeconds == b.DurationSeconds
}

// DefaultClipID returns the ID of the clip with the lowest order, or empty
// when the list is empty. Used to pick the selection after generation settles.
func DefaultClipID(clips []Clip) string {
	best := ""
	bestOrder := 0
	for _, clip := range clips {
		if best == "" || clip.Order < bestOrder {
			best = clip.ID
			bestOrder = clip.Order
		}
	}
	return best
}

// MaxOrder returns the highest order value present, or -1 for an empty list.
func MaxOrder(clips []Clip) int {
	max := -1
	for _, clip := range clips {
		if clip.Order > max {
			max = clip.Order
		}
	}
	return max
}

// ClipAtOrder returns the clip occupying the given order slot if any.
func ClipAtOrder(clips []Clip, order int) (Clip, bool) {
	for _, clip := range clips {
		if clip.Order == order {
			return clip, true
		}
	}
	return Clip{}, false
}

func sortClips(clips []Clip) []Clip {
	sorted := make([]Clip, len(clips))
	copy(sorted, clips)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return strings.Compare(sorted[i].ID, sorted[j].ID) < 0
	})
	return sorted
}
