package main

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/notifications"
	"stagehand/internal/pipeline"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withPipeline opens the registry and hands the closure an unstarted
// orchestrator sharing it. CLI commands mutate jobs only through orchestrator
// operations so the transition rules hold no matter which process writes.
func (c *commandContext) withPipeline(fn func(*pipeline.Orchestrator, jobs.Registry) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	registry, err := jobs.Open(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	orch := pipeline.New(cfg, registry, jobLogStore(cfg), notifications.NewService(cfg), logging.NewNop())
	return fn(orch, registry)
}

// withRegistry is the read-path variant for commands that only list or
// inspect jobs.
func (c *commandContext) withRegistry(fn func(jobs.Registry) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	registry, err := jobs.Open(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()
	return fn(registry)
}

func jobLogStore(cfg *config.Config) *joblog.FileStore {
	return joblog.NewFileStore(filepath.Join(cfg.Paths.LogDir, "jobs"))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
