package deps

import (
	"os"
	"path/filepath"
	"testing"

	"stagehand/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available {
		t.Fatalf("expected unset command to be unavailable")
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %s", results[2].Detail)
	}
}

func TestRequiredMarksOptionalTools(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Remote = ""

	byName := make(map[string]Requirement)
	for _, req := range Required(&cfg) {
		byName[req.Name] = req
	}

	for _, name := range []string{"FFmpeg", "FFprobe", "Demucs", "WhisperX", "yt-dlp"} {
		req, ok := byName[name]
		if !ok {
			t.Fatalf("missing requirement %q", name)
		}
		if req.Optional {
			t.Errorf("%s should be required", name)
		}
	}
	if !byName["nvidia-smi"].Optional {
		t.Error("nvidia-smi should be optional")
	}
	if !byName["rclone"].Optional {
		t.Error("rclone should be optional when no remote is configured")
	}

	cfg.Archive.Remote = "gdrive:karaoke"
	for _, req := range Required(&cfg) {
		if req.Name == "rclone" && req.Optional {
			t.Error("rclone should be required once a remote is configured")
		}
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "A", Available: true},
		{Name: "B", Available: false, Optional: true},
		{Name: "C", Available: false},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "C" {
		t.Fatalf("MissingRequired() = %#v, want only C", missing)
	}
}

func TestVersionReadsFirstLine(t *testing.T) {
	binDir := t.TempDir()
	tool := filepath.Join(binDir, "sometool")
	script := []byte("#!/bin/sh\necho 'sometool 4.2.0'\necho 'build details'\n")
	if err := os.WriteFile(tool, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	if got := Version(tool); got != "sometool 4.2.0" {
		t.Fatalf("Version() = %q, want %q", got, "sometool 4.2.0")
	}
	if got := Version("clearly-not-present-binary"); got != "" {
		t.Fatalf("Version() for missing binary = %q, want empty", got)
	}
	if got := Version(""); got != "" {
		t.Fatalf("Version() for empty command = %q, want empty", got)
	}
}
