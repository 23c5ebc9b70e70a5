// Package poll implements the pull-based fallback for tracking generation
// progress when no push channel is available yet.
//
// A Controller owns at most one polling loop. StartConditional watches an
// in-progress document for the moment a push-channel session id appears and
// hands off atomically: the loop is torn down before the hand-off callback
// fires, so a caller can never observe both the hand-off and a later tick
// from the same loop. StartPolling is the unconditional variant for jobs
// known to have no push channel at all.
package poll
