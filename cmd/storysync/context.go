package main

import (
	"fmt"
	"strings"
	"sync"

	"storysync/internal/artifactcache"
	"storysync/internal/autosave"
	"storysync/internal/backend"
	"storysync/internal/config"
	"storysync/internal/logging"
	"storysync/internal/notifications"
	"storysync/internal/orchestrator"
	"storysync/internal/poll"
	"storysync/internal/reconcile"
	"storysync/internal/registry"
	"storysync/internal/stream"
)

type commandContext struct {
	configFlag  *string
	backendFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, backendFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		backendFlag: backendFlag,
	}
}

// configPath returns the user-supplied config flag value, or empty for the
// default location.
func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if c.backendFlag != nil {
			if override := strings.TrimSpace(*c.backendFlag); override != "" {
				cfg.Backend.BaseURL = strings.TrimRight(override, "/")
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session bundles the orchestrator with the resources it owns.
type session struct {
	Orchestrator *orchestrator.Orchestrator
	Client       *backend.Client

	cache *artifactcache.Store
}

func (s *session) Close() {
	s.Orchestrator.Reset()
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

// openSession builds the full synchronization stack against the configured
// backend. The caller owns the returned session and must Close it.
func (c *commandContext) openSession() (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	client, err := backend.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	cache, err := artifactcache.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open artifact cache: %w", err)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Backend:  client,
		Stream:   stream.NewClient(client, cfg.DialTimeout(), logger),
		Poller:   poll.NewController(client, logger),
		Verifier: reconcile.NewEngine(client, cfg.Sync.ReconcileMaxRetries, cfg.ReconcileBackoff(), logger),
		Saver:    autosave.NewDebouncer(client, cfg.AutosaveQuiet(), logger),
		Registry: registry.New(cfg.ArtifactCache.MinContentBytes, cache, logger),
		Notifier: notifications.NewService(cfg),
		Config:   cfg,
		Logger:   logger,
	})

	return &session{Orchestrator: orch, Client: client, cache: cache}, nil
}
