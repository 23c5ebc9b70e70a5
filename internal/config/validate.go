package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateArtifactCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", c.Backend.BaseURL)
	}
	if c.Backend.GenerationTimeout <= 0 {
		return errors.New("backend.generation_timeout must be positive")
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be positive")
	}
	if c.Backend.DialTimeout <= 0 {
		return errors.New("backend.dial_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PollIntervalMillis <= 0 {
		return errors.New("sync.poll_interval_millis must be positive")
	}
	if c.Sync.AutosaveQuietMillis <= 0 {
		return errors.New("sync.autosave_quiet_millis must be positive")
	}
	if c.Sync.ReconcileMaxRetries < 0 {
		return errors.New("sync.reconcile_max_retries must not be negative")
	}
	if c.Sync.ReconcileBackoffMillis <= 0 {
		return errors.New("sync.reconcile_backoff_millis must be positive")
	}
	return nil
}

func (c *Config) validateArtifactCache() error {
	if c.ArtifactCache.MinContentBytes <= 0 {
		return errors.New("artifact_cache.min_content_bytes must be positive")
	}
	if c.ArtifactCache.ListMaxAgeMillis < 0 {
		return errors.New("artifact_cache.list_max_age_millis must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
