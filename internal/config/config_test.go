package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storysync/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatalf("expected missing file, got exists for %s", resolved)
	}
	if cfg.Backend.GenerationTimeout != 300 {
		t.Fatalf("expected default generation timeout, got %d", cfg.Backend.GenerationTimeout)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[sync]\npoll_interval_millis = 250\n\n[backend]\nbase_url = \"backend.example:9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected file to be detected")
	}
	if cfg.Sync.PollIntervalMillis != 250 {
		t.Fatalf("expected overlay poll interval 250, got %d", cfg.Sync.PollIntervalMillis)
	}
	if cfg.Backend.BaseURL != "http://backend.example:9000" {
		t.Fatalf("expected scheme added during normalize, got %q", cfg.Backend.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero poll interval", func(c *config.Config) { c.Sync.PollIntervalMillis = 0 }, "poll_interval"},
		{"zero quiet period", func(c *config.Config) { c.Sync.AutosaveQuietMillis = 0 }, "autosave_quiet"},
		{"negative retries", func(c *config.Config) { c.Sync.ReconcileMaxRetries = -1 }, "reconcile_max_retries"},
		{"zero min content", func(c *config.Config) { c.ArtifactCache.MinContentBytes = 0 }, "min_content_bytes"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	defaults := config.Default()
	if cfg.Sync.PollIntervalMillis != defaults.Sync.PollIntervalMillis {
		t.Fatalf("sample drifted from defaults: %d", cfg.Sync.PollIntervalMillis)
	}
}
