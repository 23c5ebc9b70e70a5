package testsupport

import (
	"path/filepath"
	"testing"

	"storysync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and timings short enough for fast tests. It applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.ArtifactCache.Dir = filepath.Join(base, "artifacts")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	cfg.Sync.PollIntervalMillis = 20
	cfg.Sync.AutosaveQuietMillis = 50
	cfg.Sync.ReconcileMaxRetries = 2
	cfg.Sync.ReconcileBackoffMillis = 10
	cfg.Backend.RequestTimeout = 5
	cfg.Backend.GenerationTimeout = 5
	cfg.Backend.DialTimeout = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBaseURL points the backend section at the given server.
func WithBaseURL(baseURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Backend.BaseURL = baseURL
	}
}

// WithPollInterval overrides the polling cadence.
func WithPollInterval(millis int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.PollIntervalMillis = millis
	}
}

// WithAutosaveQuiet overrides the debounce quiet period.
func WithAutosaveQuiet(millis int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.AutosaveQuietMillis = millis
	}
}
