package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	LockDir    string `toml:"lock_dir"`
}

// Store contains configuration for the job registry backend.
type Store struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisDB       int    `toml:"redis_db"`
	RedisPassword string `toml:"redis_password"`
}

// Acquisition contains configuration for fetching source media.
type Acquisition struct {
	Timeout int `toml:"timeout"`
}

// Separation contains configuration for stem separation.
type Separation struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	Timeout     int    `toml:"timeout"`
	GPUSlots    int    `toml:"gpu_slots"`
}

// Transcription contains configuration for lyric transcription.
type Transcription struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	Timeout     int    `toml:"timeout"`
	Language    string `toml:"language"`
}

// Render contains configuration for preview rendering.
type Render struct {
	PreviewResolution string `toml:"preview_resolution"`
	Timeout           int    `toml:"timeout"`
	StylesPath        string `toml:"styles_path"`
}

// Encoding contains configuration for final video encoding.
type Encoding struct {
	HardwareEnabled bool   `toml:"hardware_enabled"`
	Quality         int    `toml:"quality"`
	Preset          string `toml:"preset"`
	Timeout         int    `toml:"timeout"`
}

// Archive contains configuration for brand code allocation and delivery.
type Archive struct {
	BrandPrefix   string `toml:"brand_prefix"`
	Remote        string `toml:"remote"`
	SettleSeconds int    `toml:"settle_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Finalize       bool   `toml:"finalize"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Stagehand.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, log, and lock directories
//   - Store: job registry backend (sqlite, redis, or memory)
//   - Acquisition: source media fetch timeout
//   - Separation: stem separation model and GPU settings
//   - Transcription: lyric transcription model and language
//   - Render: preview render resolution, timeout, and global styles
//   - Encoding: final encode quality and hardware acceleration
//   - Archive: brand code prefix and optional rclone remote
//   - Workflow: daemon polling intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Separation    Separation    `toml:"separation"`
	Transcription Transcription `toml:"transcription"`
	Render        Render        `toml:"render"`
	Encoding      Encoding      `toml:"encoding"`
	Archive       Archive       `toml:"archive"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stagehand/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/stagehand/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stagehand.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	if c.Store.Backend == "sqlite" && strings.TrimSpace(c.Store.SQLitePath) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create store directory %q: %w", filepath.Dir(c.Store.SQLitePath), err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for rendering and encoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// DemucsBinary returns the stem separation executable name.
func (c *Config) DemucsBinary() string {
	return "demucs"
}

// WhisperXBinary returns the transcription executable name.
func (c *Config) WhisperXBinary() string {
	return "whisperx"
}

// YtdlpBinary returns the media download executable name.
func (c *Config) YtdlpBinary() string {
	return "yt-dlp"
}

// RcloneBinary returns the remote sync executable name.
func (c *Config) RcloneBinary() string {
	return "rclone"
}

// NvidiaSmiBinary returns the GPU query executable name.
func (c *Config) NvidiaSmiBinary() string {
	return "nvidia-smi"
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
