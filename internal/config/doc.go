// Package config loads and validates storysync configuration from TOML.
//
// Configuration covers the backend endpoint, generation timeouts, polling and
// debounce intervals, reconciliation retry bounds, the artifact cache, and log
// output. Load applies defaults first, then overlays the file when present,
// then normalizes paths and validates the result, so callers always receive a
// usable config or an error that names the offending key.
//
// Prefer Default() plus explicit field overrides in tests; see
// internal/testsupport.
package config
