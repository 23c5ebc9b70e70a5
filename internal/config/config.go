package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Backend contains connection settings for the generation backend.
type Backend struct {
	BaseURL string `toml:"base_url"`
	// GenerationTimeout bounds initialize/start calls in seconds. Generation
	// requests run for minutes; an expired timeout surfaces as an aborted
	// request, distinguishable from an unreachable server.
	GenerationTimeout int `toml:"generation_timeout"`
	RequestTimeout    int `toml:"request_timeout"`
	DialTimeout       int `toml:"dial_timeout"`
}

// Sync contains timing knobs for the progress synchronization loops.
type Sync struct {
	PollIntervalMillis     int `toml:"poll_interval_millis"`
	AutosaveQuietMillis    int `toml:"autosave_quiet_millis"`
	ReconcileMaxRetries    int `toml:"reconcile_max_retries"`
	ReconcileBackoffMillis int `toml:"reconcile_backoff_millis"`
}

// ArtifactCache contains configuration for artifact content caching.
type ArtifactCache struct {
	Dir string `toml:"dir"`
	// MinContentBytes is the smallest payload treated as real content.
	// Placeholder stubs below this size are never reported as available.
	MinContentBytes  int `toml:"min_content_bytes"`
	ListMaxAgeMillis int `toml:"list_max_age_millis"`
}

// Notifications contains settings for out-of-band event delivery.
type Notifications struct {
	// NtfyTopic is the full ntfy topic URL. Empty disables notifications.
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeoutSecs int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for storysync.
type Config struct {
	Backend       Backend       `toml:"backend"`
	Sync          Sync          `toml:"sync"`
	ArtifactCache ArtifactCache `toml:"artifact_cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storysync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// PollInterval returns the polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMillis) * time.Millisecond
}

// AutosaveQuiet returns the debounce quiet period as a duration.
func (c *Config) AutosaveQuiet() time.Duration {
	return time.Duration(c.Sync.AutosaveQuietMillis) * time.Millisecond
}

// ReconcileBackoff returns the fixed wait between reconciliation retries.
func (c *Config) ReconcileBackoff() time.Duration {
	return time.Duration(c.Sync.ReconcileBackoffMillis) * time.Millisecond
}

// GenerationTimeout returns the long generation request bound.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Backend.GenerationTimeout) * time.Second
}

// RequestTimeout returns the bound for ordinary document/artifact calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// DialTimeout returns the websocket dial bound.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Backend.DialTimeout) * time.Second
}

// NotifyTimeout returns the bound for notification delivery calls.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSecs) * time.Second
}

// ListMaxAge returns the artifact list cache freshness bound.
func (c *Config) ListMaxAge() time.Duration {
	return time.Duration(c.ArtifactCache.ListMaxAgeMillis) * time.Millisecond
}

// EnsureDirectories creates the directories the subsystem writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ArtifactCache.Dir, c.Logging.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err = os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
