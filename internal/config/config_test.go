package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"stagehand/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "stagehand", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "karaoke-library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLitePath != filepath.Join(tempHome, ".local", "share", "stagehand", "jobs.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Store.SQLitePath)
	}
	if cfg.Separation.Model != "htdemucs" {
		t.Fatalf("unexpected separation model: %q", cfg.Separation.Model)
	}
	if !cfg.Separation.CUDAEnabled {
		t.Fatal("expected separation CUDA enabled by default")
	}
	if cfg.Separation.GPUSlots != 1 {
		t.Fatalf("expected 1 GPU slot by default, got %d", cfg.Separation.GPUSlots)
	}
	if cfg.Transcription.Model != "large-v3" {
		t.Fatalf("unexpected transcription model: %q", cfg.Transcription.Model)
	}
	if cfg.Archive.BrandPrefix != "KV" {
		t.Fatalf("unexpected brand prefix: %q", cfg.Archive.BrandPrefix)
	}
	if cfg.Archive.Remote != "" {
		t.Fatalf("expected remote disabled by default, got %q", cfg.Archive.Remote)
	}
	if cfg.Workflow.QueuePollInterval != config.Default().Workflow.QueuePollInterval {
		t.Fatalf("unexpected poll interval: %d", cfg.Workflow.QueuePollInterval)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir, cfg.Paths.LockDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "stagehand.toml")

	type payload struct {
		Store struct {
			Backend   string `toml:"backend"`
			RedisAddr string `toml:"redis_addr"`
		} `toml:"store"`
		Archive struct {
			BrandPrefix string `toml:"brand_prefix"`
		} `toml:"archive"`
		Workflow struct {
			QueuePollInterval int `toml:"queue_poll_interval"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Store.Backend = "redis"
	custom.Store.RedisAddr = "redis.local:6380"
	custom.Archive.BrandPrefix = "demo7"
	custom.Workflow.QueuePollInterval = 20
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Store.Backend != "redis" {
		t.Fatalf("expected redis backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.RedisAddr != "redis.local:6380" {
		t.Fatalf("unexpected redis addr: %q", cfg.Store.RedisAddr)
	}
	if cfg.Archive.BrandPrefix != "DEMO7" {
		t.Fatalf("expected brand prefix normalized to upper case, got %q", cfg.Archive.BrandPrefix)
	}
	if cfg.Workflow.QueuePollInterval != 20 {
		t.Fatalf("expected poll interval 20, got %d", cfg.Workflow.QueuePollInterval)
	}
}

func TestEnvFallbacksFillBlankSecrets(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("NTFY_TOPIC", "stagehand-alerts")
	t.Setenv("STAGEHAND_REDIS_PASSWORD", "hunter2")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "stagehand-alerts" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Store.RedisPassword != "hunter2" {
		t.Fatalf("expected redis password from env, got %q", cfg.Store.RedisPassword)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "brand_prefix") {
		t.Fatalf("sample config missing brand_prefix: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown store backend")
	}

	cfg = config.Default()
	cfg.Archive.BrandPrefix = "9bad"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid brand prefix")
	}

	cfg = config.Default()
	cfg.Render.PreviewResolution = "wide"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed resolution")
	}

	cfg = config.Default()
	cfg.Workflow.QueuePollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive poll interval")
	}

	cfg = config.Default()
	cfg.Store.Backend = "redis"
	cfg.Store.RedisAddr = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis backend without addr")
	}
}
