package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"stagehand/internal/deps"
	"stagehand/internal/jobs"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	tools := []deps.Status{
		{Name: "FFmpeg", Available: false, Detail: `binary "ffmpeg" not found`},
		{Name: "Demucs", Available: true, Command: "no-such-demucs-binary"},
		{Name: "nvidia-smi", Available: false, Optional: true, Detail: "binary not found"},
	}
	lines := dependencyLines(tools, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR]") || !strings.Contains(lines[0], "ffmpeg") {
		t.Fatalf("expected error detail first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: no-such-demucs-binary)") {
		t.Fatalf("expected ready detail, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN]") || !strings.Contains(lines[2], "(optional)") {
		t.Fatalf("expected optional warn, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing tools") || !strings.Contains(lines[3], "FFmpeg") {
		t.Fatalf("expected missing summary, got %q", lines[3])
	}
}

func TestDaemonStatusLine(t *testing.T) {
	got := daemonStatusLine(false, 0, false)
	if !strings.Contains(got, "[WARN] Not running") {
		t.Fatalf("expected not-running warn, got %q", got)
	}
	got = daemonStatusLine(true, 4242, false)
	if !strings.Contains(got, "[OK] Running (pid 4242)") {
		t.Fatalf("expected running detail, got %q", got)
	}
}

func TestBuildHealthRows(t *testing.T) {
	rows := buildHealthRows(jobs.HealthSummary{
		Total:          5,
		Queued:         2,
		AwaitingReview: 1,
		Complete:       2,
	})
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (3 states + total), got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last[0] != "Total" || last[1] != "5" {
		t.Fatalf("expected total row last, got %v", last)
	}
	for _, row := range rows {
		if row[0] == "Errored" {
			t.Fatalf("zero-count state should be omitted: %v", rows)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
