// Package render implements the review and rendering phase: it turns the
// on-disk corrections file into burned-in karaoke subtitles and produces the
// preview video the operator inspects before finalization.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/fileutil"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/lyrics"
	"stagehand/internal/media/ffmpeg"
	"stagehand/internal/services"
	"stagehand/internal/staging"
)

const (
	subtitlesName = "subtitles.ass"
	previewName   = "preview.mp4"
)

// Runner executes phase 2 in two steps driven by the orchestrator:
// ApplyCorrections while the job is reviewing, RenderPreview while it is
// rendering.
type Runner struct {
	cfg    *config.Config
	ffmpeg *ffmpeg.Service
	log    joblog.Store
	logger *slog.Logger
}

// NewRunner wires the render phase from configuration.
func NewRunner(cfg *config.Config, log joblog.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		ffmpeg: ffmpeg.NewService(cfg.FFmpegBinary()),
		log:    log,
		logger: logging.NewComponentLogger(logger, "render"),
	}
}

// FFmpeg exposes the render service for test stubbing.
func (r *Runner) FFmpeg() *ffmpeg.Service { return r.ffmpeg }

// ApplyCorrections re-reads the corrections file from disk — it is the
// authoritative record even when a payload was just submitted — and writes the
// ASS subtitle file used by both the preview and the final render. Jobs that
// opted out of lyrics skip subtitle generation entirely.
func (r *Runner) ApplyCorrections(ctx context.Context, job *jobs.Job) (map[string]string, error) {
	attrs := make(map[string]string)

	ws := staging.JobWorkspace(r.cfg.Paths.StagingDir, job.ID)
	if !ws.Exists() {
		return attrs, services.Wrap(services.ErrStale, "reviewing", "locate workspace", ws.Root, nil)
	}

	correctionsPath := ws.CorrectionsPath()
	if !fileExists(correctionsPath) {
		if job.Attr(jobs.AttrLyricsDisabled) == "true" {
			r.appendLog(job.ID, "Subtitles skipped: lyrics disabled")
			return attrs, nil
		}
		return attrs, services.Wrap(services.ErrNotFound, "reviewing", "load corrections", correctionsPath, os.ErrNotExist)
	}

	corrections, err := lyrics.Load(correctionsPath)
	if err != nil {
		return attrs, services.Wrap(services.ErrValidation, "reviewing", "load corrections", "", err)
	}

	styles, err := r.ensureStyles(ws)
	if err != nil {
		return attrs, err
	}

	assPath := filepath.Join(ws.RenderDir(), subtitlesName)
	if err := os.WriteFile(assPath, []byte(lyrics.BuildASS(corrections, styles)), 0o644); err != nil {
		return attrs, services.Wrap(services.ErrTransient, "reviewing", "write subtitles", "", err)
	}

	r.appendLog(job.ID, fmt.Sprintf("Subtitles built from %d lines", len(corrections.Lines)))
	attrs[jobs.AttrCorrectionsPath] = correctionsPath
	return attrs, nil
}

// ensureStyles stages the global styles template into the workspace on first
// use and loads whatever the workspace holds, falling back to defaults.
func (r *Runner) ensureStyles(ws staging.Workspace) (lyrics.Styles, error) {
	stylesPath := ws.StylesPath()
	if !fileExists(stylesPath) && r.cfg.Render.StylesPath != "" {
		if !fileExists(r.cfg.Render.StylesPath) {
			return lyrics.Styles{}, services.Wrap(services.ErrConfiguration, "reviewing", "load styles",
				fmt.Sprintf("configured styles file missing: %s", r.cfg.Render.StylesPath), nil)
		}
		if err := fileutil.Copy(r.cfg.Render.StylesPath, stylesPath); err != nil {
			return lyrics.Styles{}, services.Wrap(services.ErrTransient, "reviewing", "stage styles", "", err)
		}
	}
	styles, err := lyrics.LoadStyles(stylesPath)
	if err != nil {
		return lyrics.Styles{}, services.Wrap(services.ErrValidation, "reviewing", "load styles", "", err)
	}
	return styles, nil
}

// RenderPreview produces the preview video: instrumental audio over a solid
// background with subtitles burned in. An existing preview short-circuits.
func (r *Runner) RenderPreview(ctx context.Context, job *jobs.Job) (map[string]string, error) {
	attrs := make(map[string]string)

	ws := staging.JobWorkspace(r.cfg.Paths.StagingDir, job.ID)
	if !ws.Exists() {
		return attrs, services.Wrap(services.ErrStale, "rendering", "locate workspace", ws.Root, nil)
	}

	previewPath := filepath.Join(ws.RenderDir(), previewName)
	if fileExists(previewPath) {
		r.appendLog(job.ID, "Render skipped: preview already present")
		attrs[jobs.AttrPreviewPath] = previewPath
		return attrs, nil
	}

	audio, err := r.resolveInstrumental(job, ws)
	if err != nil {
		return attrs, err
	}

	args := buildPreviewArgs(r.cfg.Render.PreviewResolution, audio, assArg(ws), previewPath)

	toolCtx := ctx
	if r.cfg.Render.Timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.Render.Timeout)*time.Second)
		defer cancel()
	}

	start := time.Now()
	if err := r.ffmpeg.Run(toolCtx, args...); err != nil {
		return attrs, services.Wrap(services.ToolFailure(toolCtx, err), "rendering", "render preview", "", err)
	}
	if !fileExists(previewPath) {
		return attrs, services.Wrap(services.ErrExternalTool, "rendering", "render preview", "preview file missing after render", nil)
	}

	r.appendLog(job.ID, fmt.Sprintf("Preview rendered in %s", time.Since(start).Round(time.Second)))
	r.logger.Info("preview rendered", logging.Args(
		logging.String("job_id", job.ID),
		logging.String("preview", previewPath),
		logging.Duration("elapsed", time.Since(start)),
	)...)
	attrs[jobs.AttrPreviewPath] = previewPath
	return attrs, nil
}

// resolveInstrumental picks the audio track for the preview: the path recorded
// by the processing phase (which is also where a caller-supplied instrumental
// lands), falling back to the canonical stem location.
func (r *Runner) resolveInstrumental(job *jobs.Job, ws staging.Workspace) (string, error) {
	if path := job.Attr(jobs.AttrInstrumentalPath); path != "" && fileExists(path) {
		return path, nil
	}
	canonical := filepath.Join(ws.StemsDir(), "instrumental.wav")
	if fileExists(canonical) {
		return canonical, nil
	}
	return "", services.Wrap(services.ErrStale, "rendering", "locate instrumental",
		"no instrumental stem on disk; re-run processing", nil)
}

// assArg returns the subtitles filter argument, or empty when the job has no
// subtitle file.
func assArg(ws staging.Workspace) string {
	assPath := filepath.Join(ws.RenderDir(), subtitlesName)
	if !fileExists(assPath) {
		return ""
	}
	return "ass=" + assPath
}

// buildPreviewArgs assembles the ffmpeg invocation: synthetic background video
// sized to the preview resolution, the instrumental as the audio track, and an
// optional burned-in subtitle filter. -shortest ends the infinite background
// at the audio's length.
func buildPreviewArgs(resolution, audio, subtitleFilter, dest string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=black:s=%s:r=30", resolution),
		"-i", audio,
	}
	if subtitleFilter != "" {
		args = append(args, "-vf", subtitleFilter)
	}
	args = append(args,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		dest,
	)
	return args
}

func (r *Runner) appendLog(jobID, line string) {
	if r.log == nil {
		return
	}
	if err := r.log.Append(jobID, line); err != nil {
		r.logger.Warn("job log append failed", logging.Args(
			logging.String("job_id", jobID),
			logging.Error(err),
		)...)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
