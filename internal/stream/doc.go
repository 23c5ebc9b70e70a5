// Package stream subscribes to the backend's push progress channel for one
// active generation session.
//
// The Client owns at most one websocket subscription at a time. Attach is
// idempotent per session id; attaching a different id tears the previous
// subscription down first. Clip-arrival messages are deduplicated by
// (artifact id, clip id) before they reach the caller, and a terminal status
// fires exactly one of OnComplete/OnError followed by Cleanup, in that order,
// so the caller can never observe a completion and then an error for the same
// session.
//
// Connection-level failures are not retried here; they surface as OnError
// plus forced cleanup and the orchestrator decides whether to fall back to
// polling.
package stream
