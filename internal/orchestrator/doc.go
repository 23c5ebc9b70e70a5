// Package orchestrator drives the generation lifecycle for one document.
//
// It owns the state machine Idle -> Initializing -> Generating -> terminal
// and the single monitoring slot behind it: either a push subscription or a
// polling loop, never both. Every transition funnels through one guarded
// mutation path, and terminal handling is keyed to a generation sequence so
// a push message and a poll tick observing completion "simultaneously"
// settle to exactly one completion callback.
//
// User edits (rename, reorder, add, delete) mutate the in-memory document
// and route through the autosave debouncer; they never touch the generation
// job itself.
package orchestrator
