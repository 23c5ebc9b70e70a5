// Package registry caches generated artifact content and coalesces duplicate
// fetches.
//
// The Registry is process-wide shared state, but deliberately modeled as a
// service object with injected lifetime rather than package globals: construct
// one at application start, pass it by reference, reset it between tests.
//
// Status semantics callers rely on: not_found and failed mean "safe to
// retry", loading means "a fetch is outstanding, await it", and available
// means the content passed the minimum-size validity rule. Content below that
// threshold is a placeholder or error stub and is stored but never reported
// available. TrackRequest guarantees at most one outstanding fetch per key as
// long as every caller routes fetches through it.
package registry
