package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	if err := c.normalizeArtifactCache(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSecs <= 0 {
		c.Notifications.RequestTimeoutSecs = defaultNotifyTimeout
	}
}

func (c *Config) normalizeBackend() error {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendBaseURL
	}
	if !strings.Contains(c.Backend.BaseURL, "://") {
		c.Backend.BaseURL = "http://" + c.Backend.BaseURL
	}
	return nil
}

func (c *Config) normalizeArtifactCache() error {
	if strings.TrimSpace(c.ArtifactCache.Dir) == "" {
		c.ArtifactCache.Dir = defaultArtifactCacheDir
	}
	var err error
	if c.ArtifactCache.Dir, err = expandPath(c.ArtifactCache.Dir); err != nil {
		return fmt.Errorf("artifact_cache.dir: %w", err)
	}
	if c.ArtifactCache.MinContentBytes <= 0 {
		c.ArtifactCache.MinContentBytes = defaultMinContentBytes
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if dir := strings.TrimSpace(c.Logging.Dir); dir != "" {
		if expanded, err := expandPath(dir); err == nil {
			c.Logging.Dir = expanded
		}
	}
}
