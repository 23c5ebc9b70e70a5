// Package backend is the HTTP client for the generation backend.
//
// The backend itself is a black box: this package only knows its
// request/response contract (initialize, start, document fetch/save/delete,
// artifact fetch) and how to classify its failures. Generation calls use a
// long configurable timeout with cooperative abort; an expired deadline
// surfaces as ErrTimeout so callers can tell "aborted due to timeout" apart
// from "server unreachable" (ErrUnavailable).
//
// The progress push channel lives in internal/stream; this package only
// exposes the websocket endpoint URL for it.
package backend
