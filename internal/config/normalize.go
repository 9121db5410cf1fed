package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeAcquisition()
	c.normalizeSeparation()
	c.normalizeTranscription()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeArchive()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	c.Store.RedisAddr = strings.TrimSpace(c.Store.RedisAddr)
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = defaultRedisAddr
	}
	c.Store.RedisPassword = strings.TrimSpace(c.Store.RedisPassword)
	if c.Store.RedisPassword == "" {
		if value, ok := os.LookupEnv("STAGEHAND_REDIS_PASSWORD"); ok {
			c.Store.RedisPassword = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeAcquisition() {
	if c.Acquisition.Timeout <= 0 {
		c.Acquisition.Timeout = defaultAcquisition
	}
}

func (c *Config) normalizeSeparation() {
	c.Separation.Model = strings.TrimSpace(c.Separation.Model)
	if c.Separation.Model == "" {
		c.Separation.Model = defaultSeparationModel
	}
	if c.Separation.Timeout <= 0 {
		c.Separation.Timeout = defaultSeparationTimeout
	}
	if c.Separation.GPUSlots <= 0 {
		c.Separation.GPUSlots = defaultGPUSlots
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.Timeout <= 0 {
		c.Transcription.Timeout = defaultTranscription
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultLanguage
	}
}

func (c *Config) normalizeRender() error {
	c.Render.PreviewResolution = strings.ToLower(strings.TrimSpace(c.Render.PreviewResolution))
	if c.Render.PreviewResolution == "" {
		c.Render.PreviewResolution = defaultPreviewResolution
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = defaultRenderTimeout
	}
	c.Render.StylesPath = strings.TrimSpace(c.Render.StylesPath)
	if c.Render.StylesPath != "" {
		var err error
		if c.Render.StylesPath, err = expandPath(c.Render.StylesPath); err != nil {
			return fmt.Errorf("render.styles_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEncoding() {
	if c.Encoding.Quality <= 0 {
		c.Encoding.Quality = defaultEncodingQuality
	}
	c.Encoding.Preset = strings.ToLower(strings.TrimSpace(c.Encoding.Preset))
	if c.Encoding.Preset == "" {
		c.Encoding.Preset = defaultEncodingPreset
	}
	if c.Encoding.Timeout <= 0 {
		c.Encoding.Timeout = defaultEncodingTimeout
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.BrandPrefix = strings.ToUpper(strings.TrimSpace(c.Archive.BrandPrefix))
	if c.Archive.BrandPrefix == "" {
		c.Archive.BrandPrefix = defaultBrandPrefix
	}
	c.Archive.Remote = strings.TrimSpace(c.Archive.Remote)
	if c.Archive.SettleSeconds < 0 {
		c.Archive.SettleSeconds = defaultSettleSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
