// Package autosave persists incidental document edits with a trailing-edge
// debounce: at most one save per quiet period, always eventually saving the
// latest observed state.
//
// Scheduling is gated on a structural fingerprint, so re-renders that do not
// change persisted meaning never schedule a save. Save failures are logged
// and reported through the optional failure hook but never retried here; the
// next edit schedules a fresh attempt.
package autosave
