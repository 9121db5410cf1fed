package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"stagehand/internal/config"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/lyrics"
	"stagehand/internal/services"
	"stagehand/internal/staging"
	"stagehand/internal/testsupport"
)

func seededWorkspace(t *testing.T, cfg *config.Config, job *jobs.Job) staging.Workspace {
	t.Helper()
	ws := staging.JobWorkspace(cfg.Paths.StagingDir, job.ID)
	if err := ws.Ensure(); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	return ws
}

func seedCorrections(t *testing.T, ws staging.Workspace) {
	t.Helper()
	corrections := lyrics.Corrections{Lines: []lyrics.Line{
		{Start: 1, End: 3, Text: "Hello world"},
		{Start: 4, End: 6, Text: "Second line"},
	}}
	if err := lyrics.Save(ws.CorrectionsPath(), corrections); err != nil {
		t.Fatalf("seed corrections: %v", err)
	}
}

func TestApplyCorrectionsBuildsSubtitles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(map[string]string{jobs.AttrTitle: "Song"})
	ws := seededWorkspace(t, cfg, job)
	seedCorrections(t, ws)

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	attrs, err := runner.ApplyCorrections(context.Background(), job)
	if err != nil {
		t.Fatalf("ApplyCorrections: %v", err)
	}
	if attrs[jobs.AttrCorrectionsPath] != ws.CorrectionsPath() {
		t.Fatalf("expected corrections path attribute, got %v", attrs)
	}

	data, err := os.ReadFile(filepath.Join(ws.RenderDir(), "subtitles.ass"))
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	content := string(data)
	for _, fragment := range []string{"[Events]", "Hello world", "Second line"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in subtitles:\n%s", fragment, content)
		}
	}
}

func TestApplyCorrectionsStagesGlobalStyles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	global := filepath.Join(t.TempDir(), "styles.json")
	if err := os.WriteFile(global, []byte(`{"font_name":"Futura"}`), 0o644); err != nil {
		t.Fatalf("write global styles: %v", err)
	}
	cfg.Render.StylesPath = global

	job := jobs.NewJob(nil)
	ws := seededWorkspace(t, cfg, job)
	seedCorrections(t, ws)

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.ApplyCorrections(context.Background(), job); err != nil {
		t.Fatalf("ApplyCorrections: %v", err)
	}

	if _, err := os.Stat(ws.StylesPath()); err != nil {
		t.Fatalf("expected staged styles file: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(ws.RenderDir(), "subtitles.ass"))
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	if !strings.Contains(string(data), "Futura") {
		t.Fatal("expected global style font in subtitles")
	}
}

func TestApplyCorrectionsLyricsDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(map[string]string{jobs.AttrLyricsDisabled: "true"})
	ws := seededWorkspace(t, cfg, job)

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.ApplyCorrections(context.Background(), job); err != nil {
		t.Fatalf("ApplyCorrections: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.RenderDir(), "subtitles.ass")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no subtitles file, stat err = %v", err)
	}
}

func TestApplyCorrectionsMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	seededWorkspace(t, cfg, job)

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.ApplyCorrections(context.Background(), job); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyCorrectionsRejectsMalformedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	ws := seededWorkspace(t, cfg, job)
	if err := os.WriteFile(ws.CorrectionsPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrections: %v", err)
	}

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.ApplyCorrections(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenderPreviewInvokesFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	ws := seededWorkspace(t, cfg, job)
	seedCorrections(t, ws)
	instrumental := filepath.Join(ws.StemsDir(), "instrumental.wav")
	if err := os.WriteFile(instrumental, []byte("wav"), 0o644); err != nil {
		t.Fatalf("seed instrumental: %v", err)
	}

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.ApplyCorrections(context.Background(), job); err != nil {
		t.Fatalf("ApplyCorrections: %v", err)
	}

	var argv []string
	runner.FFmpeg().WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		argv = args
		return os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
	})

	attrs, err := runner.RenderPreview(context.Background(), job)
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}

	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "color=black:s=1280x720") {
		t.Fatalf("expected preview resolution in argv: %s", joined)
	}
	if !strings.Contains(joined, "ass="+filepath.Join(ws.RenderDir(), "subtitles.ass")) {
		t.Fatalf("expected subtitle filter in argv: %s", joined)
	}
	if !strings.Contains(joined, instrumental) {
		t.Fatalf("expected instrumental input in argv: %s", joined)
	}

	previewPath := filepath.Join(ws.RenderDir(), "preview.mp4")
	if attrs[jobs.AttrPreviewPath] != previewPath {
		t.Fatalf("expected preview path attribute, got %v", attrs)
	}
	if _, err := os.Stat(previewPath); err != nil {
		t.Fatalf("expected preview file: %v", err)
	}
}

func TestRenderPreviewSkipsExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	ws := seededWorkspace(t, cfg, job)
	previewPath := filepath.Join(ws.RenderDir(), "preview.mp4")
	if err := os.WriteFile(previewPath, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("seed preview: %v", err)
	}

	var calls atomic.Int32
	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	runner.FFmpeg().WithCommandRunner(func(context.Context, string, ...string) error {
		calls.Add(1)
		return nil
	})

	attrs, err := runner.RenderPreview(context.Background(), job)
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected render skipped, saw %d invocations", calls.Load())
	}
	if attrs[jobs.AttrPreviewPath] != previewPath {
		t.Fatalf("expected preview path attribute, got %v", attrs)
	}
}

func TestRenderPreviewMissingInstrumental(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	seededWorkspace(t, cfg, job)

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	if _, err := runner.RenderPreview(context.Background(), job); !errors.Is(err, services.ErrStale) {
		t.Fatalf("expected stale workspace error, got %v", err)
	}
}

func TestRenderPreviewToolFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	job := jobs.NewJob(nil)
	ws := seededWorkspace(t, cfg, job)
	if err := os.WriteFile(filepath.Join(ws.StemsDir(), "instrumental.wav"), []byte("wav"), 0o644); err != nil {
		t.Fatalf("seed instrumental: %v", err)
	}

	runner := NewRunner(cfg, joblog.NewMemoryStore(), logging.NewNop())
	runner.FFmpeg().WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("encoder crashed")
	})

	if _, err := runner.RenderPreview(context.Background(), job); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
