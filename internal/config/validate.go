package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	brandPrefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,7}$`)
	resolutionPattern  = regexp.MustCompile(`^\d{2,5}x\d{2,5}$`)
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("store.backend must be one of sqlite, redis, memory (got %q)", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && strings.TrimSpace(c.Store.SQLitePath) == "" {
		return errors.New("store.sqlite_path must be set when store.backend is sqlite")
	}
	if c.Store.Backend == "redis" {
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redis_addr must be set when store.backend is redis")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("store.redis_db must be >= 0")
		}
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !brandPrefixPattern.MatchString(c.Archive.BrandPrefix) {
		return fmt.Errorf("archive.brand_prefix must be 1-8 uppercase letters or digits starting with a letter (got %q)", c.Archive.BrandPrefix)
	}
	if c.Archive.SettleSeconds < 0 {
		return errors.New("archive.settle_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateRender() error {
	if !resolutionPattern.MatchString(c.Render.PreviewResolution) {
		return fmt.Errorf("render.preview_resolution must look like WIDTHxHEIGHT (got %q)", c.Render.PreviewResolution)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"acquisition.timeout":           c.Acquisition.Timeout,
		"separation.timeout":            c.Separation.Timeout,
		"separation.gpu_slots":          c.Separation.GPUSlots,
		"transcription.timeout":         c.Transcription.Timeout,
		"render.timeout":                c.Render.Timeout,
		"encoding.timeout":              c.Encoding.Timeout,
		"encoding.quality":              c.Encoding.Quality,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
