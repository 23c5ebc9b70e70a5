// Package reconcile verifies in-memory generation results against the
// persisted server document after a job reaches a terminal state.
//
// The server is authoritative for which clips exist; local state is
// authoritative for artifact references it observed arriving live. Verify
// merges the two, pushes any repairs back to the server in a single batched
// save, and degrades softly: a server that cannot be reached or that lags
// behind the terminal signal never blocks the user-visible flow.
package reconcile
