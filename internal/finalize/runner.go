// Package finalize implements the last phase: render the full-resolution
// karaoke video from the authoritative corrections file, encode the four
// deliverable variants, and archive them under a freshly allocated brand code.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stagehand/internal/archive"
	"stagehand/internal/config"
	"stagehand/internal/encoding"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/lyrics"
	"stagehand/internal/media/ffmpeg"
	"stagehand/internal/media/ffprobe"
	"stagehand/internal/services"
	"stagehand/internal/staging"
)

const (
	phaseName     = "finalizing"
	subtitlesName = "subtitles.ass"
	masterName    = "master.mkv"
)

// Instrumental selection values accepted from the finalize request. An empty
// selection prefers a caller-supplied instrumental and falls back to the
// separated stem.
const (
	SelectionStem     = "stem"
	SelectionOriginal = "original"
)

// Runner executes the finalization phase.
type Runner struct {
	cfg       *config.Config
	ffmpeg    *ffmpeg.Service
	encoder   *encoding.Encoder
	organizer *archive.Organizer
	probe     func(ctx context.Context, path string) (float64, error)
	log       joblog.Store
	logger    *slog.Logger
}

// NewRunner wires the finalization phase. The encoder is shared process-wide
// so its one-time hardware probe holds across jobs.
func NewRunner(cfg *config.Config, encoder *encoding.Encoder, log joblog.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:       cfg,
		ffmpeg:    ffmpeg.NewService(cfg.FFmpegBinary()),
		encoder:   encoder,
		organizer: archive.NewOrganizer(cfg, logger),
		log:       log,
		logger:    logging.NewComponentLogger(logger, "finalize"),
	}
	r.probe = func(ctx context.Context, path string) (float64, error) {
		result, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary(), path)
		if err != nil {
			return 0, err
		}
		return result.DurationSeconds(), nil
	}
	return r
}

// FFmpeg exposes the master render service for test stubbing.
func (r *Runner) FFmpeg() *ffmpeg.Service { return r.ffmpeg }

// Organizer exposes the delivery organizer for test stubbing.
func (r *Runner) Organizer() *archive.Organizer { return r.organizer }

// WithDurationProbe replaces the media duration probe (used in tests).
func (r *Runner) WithDurationProbe(probe func(ctx context.Context, path string) (float64, error)) {
	r.probe = probe
}

// Run renders the master video, encodes the deliverables, and moves them into
// the library. Every expensive step checks for its outputs first, so a retried
// finalization only redoes missing work. The workspace is removed after a
// successful delivery.
func (r *Runner) Run(ctx context.Context, job *jobs.Job) (map[string]string, error) {
	attrs := make(map[string]string)

	ws := staging.JobWorkspace(r.cfg.Paths.StagingDir, job.ID)
	if !ws.Exists() {
		return attrs, services.Wrap(services.ErrStale, phaseName, "locate workspace", ws.Root, nil)
	}

	audio, selection, err := r.resolveInstrumental(job, ws)
	if err != nil {
		return attrs, err
	}
	r.appendLog(job.ID, fmt.Sprintf("Instrumental selected: %s", selection))

	if err := r.rebuildSubtitles(job, ws); err != nil {
		return attrs, err
	}

	master := filepath.Join(ws.RenderDir(), masterName)
	if err := r.renderMaster(ctx, job, ws, audio, master); err != nil {
		return attrs, err
	}

	code, err := r.brandCode(ctx, job)
	if err != nil {
		return attrs, err
	}
	attrs[jobs.AttrBrandCode] = code

	artist := job.Attr(jobs.AttrArtist)
	title := job.Attr(jobs.AttrTitle)
	plan, err := encoding.BuildPlan(encoding.PlanRequest{
		Video:     master,
		Audio:     audio,
		OutputDir: ws.FinalDir(),
		BaseName:  archive.BrandedName(code, artist, title),
	})
	if err != nil {
		return attrs, services.Wrap(services.ErrValidation, phaseName, "plan encodes", "", err)
	}

	encodeCtx, cancel := r.toolContext(ctx, r.cfg.Encoding.Timeout)
	defer cancel()
	start := time.Now()
	if err := r.encoder.EncodeAll(encodeCtx, plan); err != nil {
		return attrs, err
	}
	r.appendLog(job.ID, fmt.Sprintf("Encoded %d deliverables in %s", len(plan.Artifacts), time.Since(start).Round(time.Second)))

	artifacts := make([]string, 0, len(plan.Artifacts))
	for _, artifact := range plan.Artifacts {
		artifacts = append(artifacts, artifact.Output)
	}
	result, err := r.organizer.Deliver(ctx, archive.DeliverRequest{
		BrandCode: code,
		Artist:    artist,
		Title:     title,
		Artifacts: artifacts,
	})
	if err != nil {
		return attrs, err
	}
	attrs[jobs.AttrLibraryPath] = result.FolderPath
	if result.ShareLink != "" {
		attrs[jobs.AttrShareLink] = result.ShareLink
	}
	r.appendLog(job.ID, fmt.Sprintf("Delivered to %s", result.FolderName))

	if err := ws.Remove(); err != nil {
		r.logger.Warn("workspace cleanup failed", logging.Args(
			logging.String("job_id", job.ID),
			logging.Error(err),
		)...)
	} else {
		r.appendLog(job.ID, "Workspace cleaned")
	}

	return attrs, nil
}

// resolveInstrumental maps the recorded selection to an audio file. The
// original mix is kept as an escape hatch for tracks where separation quality
// is unusable.
func (r *Runner) resolveInstrumental(job *jobs.Job, ws staging.Workspace) (path, label string, err error) {
	stem := filepath.Join(ws.StemsDir(), "instrumental.wav")
	original := filepath.Join(ws.SourceDir(), "audio.wav")

	switch selection := job.Attr(jobs.AttrInstrumental); selection {
	case "":
		if provided := job.Attr(jobs.AttrInstrumentalPath); provided != "" && fileExists(provided) {
			return provided, "supplied instrumental", nil
		}
		if fileExists(stem) {
			return stem, "separated stem", nil
		}
		return "", "", services.Wrap(services.ErrStale, phaseName, "locate instrumental",
			"no instrumental on disk; re-run processing", nil)
	case SelectionStem:
		if !fileExists(stem) {
			return "", "", services.Wrap(services.ErrStale, phaseName, "locate instrumental",
				"separated stem missing; re-run processing", nil)
		}
		return stem, "separated stem", nil
	case SelectionOriginal:
		if !fileExists(original) {
			return "", "", services.Wrap(services.ErrStale, phaseName, "locate instrumental",
				"decoded source audio missing; re-run processing", nil)
		}
		return original, "original mix", nil
	default:
		return "", "", services.Wrap(services.ErrValidation, phaseName, "resolve instrumental",
			fmt.Sprintf("unknown instrumental selection %q", selection), nil)
	}
}

// rebuildSubtitles regenerates the ASS file from the on-disk corrections. The
// corrections file is re-read here even though the render phase already
// consumed it: edits made after the preview still land in the final video.
func (r *Runner) rebuildSubtitles(job *jobs.Job, ws staging.Workspace) error {
	correctionsPath := ws.CorrectionsPath()
	if !fileExists(correctionsPath) {
		if job.Attr(jobs.AttrLyricsDisabled) == "true" {
			return nil
		}
		return services.Wrap(services.ErrNotFound, phaseName, "load corrections", correctionsPath, os.ErrNotExist)
	}
	corrections, err := lyrics.Load(correctionsPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, phaseName, "load corrections", "", err)
	}
	styles, err := lyrics.LoadStyles(ws.StylesPath())
	if err != nil {
		return services.Wrap(services.ErrValidation, phaseName, "load styles", "", err)
	}
	assPath := filepath.Join(ws.RenderDir(), subtitlesName)
	if err := os.WriteFile(assPath, []byte(lyrics.BuildASS(corrections, styles)), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, phaseName, "write subtitles", "", err)
	}
	r.appendLog(job.ID, fmt.Sprintf("Final subtitles built from %d lines", len(corrections.Lines)))
	return nil
}

// renderMaster produces the video-only full-resolution master the encode plan
// remuxes and re-encodes from. The frame size follows the subtitle play
// resolution; the clip length follows the instrumental's duration.
func (r *Runner) renderMaster(ctx context.Context, job *jobs.Job, ws staging.Workspace, audio, dest string) error {
	if fileExists(dest) {
		r.appendLog(job.ID, "Master render skipped: already present")
		return nil
	}

	duration, err := r.probe(ctx, audio)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, phaseName, "probe instrumental duration", "", err)
	}
	if duration <= 0 {
		return services.Wrap(services.ErrValidation, phaseName, "probe instrumental duration",
			fmt.Sprintf("no duration reported for %s", filepath.Base(audio)), nil)
	}

	styles, err := lyrics.LoadStyles(ws.StylesPath())
	if err != nil {
		return services.Wrap(services.ErrValidation, phaseName, "load styles", "", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=black:s=%dx%d:r=30", styles.PlayResX, styles.PlayResY),
		"-t", fmt.Sprintf("%.3f", duration),
	}
	assPath := filepath.Join(ws.RenderDir(), subtitlesName)
	if fileExists(assPath) {
		args = append(args, "-vf", "ass="+assPath)
	}
	args = append(args,
		"-an",
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "16",
		"-pix_fmt", "yuv420p",
		dest,
	)

	toolCtx, cancel := r.toolContext(ctx, r.cfg.Encoding.Timeout)
	defer cancel()
	start := time.Now()
	if err := r.ffmpeg.Run(toolCtx, args...); err != nil {
		return services.Wrap(services.ToolFailure(toolCtx, err), phaseName, "render master", "", err)
	}
	if !fileExists(dest) {
		return services.Wrap(services.ErrExternalTool, phaseName, "render master", "master file missing after render", nil)
	}
	r.appendLog(job.ID, fmt.Sprintf("Master rendered in %s", time.Since(start).Round(time.Second)))
	return nil
}

// brandCode reuses the code from an earlier finalization attempt so a retry
// never burns a serial, allocating a fresh one otherwise. The local library
// and the remote (when configured) are scanned together so the series stays
// collision-free across both.
func (r *Runner) brandCode(ctx context.Context, job *jobs.Job) (string, error) {
	if code := job.Attr(jobs.AttrBrandCode); code != "" {
		return code, nil
	}
	sources := []archive.Source{archive.NewLocalSource(r.cfg.Paths.LibraryDir)}
	if r.cfg.Archive.Remote != "" {
		sources = append(sources, archive.NewRemoteSource(r.organizer.Rclone(), r.cfg.Archive.Remote))
	}
	allocator := archive.NewAllocator(r.cfg.Archive.BrandPrefix, r.logger, sources...)
	code, err := allocator.Next(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, phaseName, "allocate brand code", "", err)
	}
	r.appendLog(job.ID, fmt.Sprintf("Brand code allocated: %s", code))
	return code, nil
}

func (r *Runner) toolContext(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
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
