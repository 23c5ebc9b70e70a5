// Package storyboard defines the persisted storyboard document model shared
// across the synchronization subsystem.
//
// A Document owns an ordered list of Clips plus an optional GenerationStatus
// that records the state of an in-flight multi-scene generation job. The
// package is the single home for clip ordering rules: insertion is idempotent
// by clip ID, order values are re-sorted after every mutation, and a completed
// document must carry a contiguous 0..N-1 order sequence. Validation failures
// here are reported, never silently repaired, so callers can decide whether to
// reconcile against the server.
//
// Treat this package as the authority for which fields are persisted; the
// autosave fingerprint and the reconciliation engine both derive their notion
// of "real change" from it.
package storyboard
