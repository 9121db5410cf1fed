// Package produce implements the processing phase: source acquisition and
// decode, GPU stem separation, and lyric transcription. Separation and
// transcription run as parallel sub-tasks; transcription starts as soon as the
// decoded audio exists and never waits for separation.
package produce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/fileutil"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/lyrics"
	"stagehand/internal/media/ffmpeg"
	"stagehand/internal/resourcelock"
	"stagehand/internal/services"
	"stagehand/internal/services/demucs"
	"stagehand/internal/services/whisperx"
	"stagehand/internal/services/ytdlp"
	"stagehand/internal/staging"
)

const phaseName = "processing"

// Canonical workspace file names. Later phases address stems and decoded audio
// by these names, so separation output is renamed into place.
const (
	separationAudioName    = "audio.wav"
	transcriptionAudioName = "audio-16k.wav"
	instrumentalStemName   = "instrumental.wav"
	vocalsStemName         = "vocals.wav"
)

// Runner executes the processing phase for one job at a time. A single Runner
// is shared by every phase invocation in the daemon; the GPU slot lock it
// holds serializes separation across processes as well.
type Runner struct {
	cfg      *config.Config
	ffmpeg   *ffmpeg.Service
	ytdlp    *ytdlp.Service
	demucs   *demucs.Service
	whisperx *whisperx.Service
	gpu      *resourcelock.SlotLock
	log      joblog.Store
	logger   *slog.Logger
}

// NewRunner wires the processing services from configuration.
func NewRunner(cfg *config.Config, log joblog.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "produce")
	return &Runner{
		cfg:    cfg,
		ffmpeg: ffmpeg.NewService(cfg.FFmpegBinary()),
		ytdlp:  ytdlp.NewService(cfg.YtdlpBinary()),
		demucs: demucs.NewService(demucs.Config{
			Model:       cfg.Separation.Model,
			CUDAEnabled: cfg.Separation.CUDAEnabled,
		}, cfg.DemucsBinary()),
		whisperx: whisperx.NewService(whisperx.Config{
			Model:       cfg.Transcription.Model,
			CUDAEnabled: cfg.Transcription.CUDAEnabled,
			Language:    cfg.Transcription.Language,
		}, cfg.WhisperXBinary()),
		gpu:    resourcelock.New(cfg.Paths.LockDir, "gpu", cfg.Separation.GPUSlots, logger),
		log:    log,
		logger: logger,
	}
}

// FFmpeg exposes the decode service for test stubbing.
func (r *Runner) FFmpeg() *ffmpeg.Service { return r.ffmpeg }

// Ytdlp exposes the download service for test stubbing.
func (r *Runner) Ytdlp() *ytdlp.Service { return r.ytdlp }

// Demucs exposes the separation service for test stubbing.
func (r *Runner) Demucs() *demucs.Service { return r.demucs }

// WhisperX exposes the transcription service for test stubbing.
func (r *Runner) WhisperX() *whisperx.Service { return r.whisperx }

// Run executes both sub-tasks and waits for each to reach a terminal state
// even when the other fails; a sibling failure never cancels the survivor.
// The returned attributes reflect whatever completed, so a later retry can
// pick up where this run left off.
func (r *Runner) Run(ctx context.Context, job *jobs.Job) (map[string]string, error) {
	ws := staging.JobWorkspace(r.cfg.Paths.StagingDir, job.ID)
	if err := ws.Ensure(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, phaseName, "prepare workspace", ws.Root, err)
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Info("processing started", logging.Args(
		logging.String("job_id", job.ID),
		logging.String("track", job.DisplayName()),
	)...)

	// Closed once the decoded audio exists; the transcription sub-task gates
	// on it. Also closed when the stems sub-task exits early so the gate can
	// never deadlock the join.
	audioReady := make(chan struct{})
	ready := sync.OnceFunc(func() { close(audioReady) })

	var (
		mu    sync.Mutex
		attrs = make(map[string]string)
	)
	merge := func(m map[string]string) {
		mu.Lock()
		defer mu.Unlock()
		for key, value := range m {
			attrs[key] = value
		}
	}

	var (
		wg        sync.WaitGroup
		stemsErr  error
		lyricsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer ready()
		m, err := r.runStems(ctx, job, ws, ready)
		merge(m)
		stemsErr = err
	}()
	go func() {
		defer wg.Done()
		m, err := r.runLyrics(ctx, job, ws, audioReady)
		merge(m)
		lyricsErr = err
	}()
	wg.Wait()

	if err := errors.Join(stemsErr, lyricsErr); err != nil {
		return attrs, err
	}

	logger.Info("processing complete", logging.Args(
		logging.String("job_id", job.ID),
		logging.String("track", job.DisplayName()),
	)...)
	return attrs, nil
}

// runStems acquires the source, decodes both WAV renditions, signals the
// transcription gate, then separates stems under the GPU lock.
func (r *Runner) runStems(ctx context.Context, job *jobs.Job, ws staging.Workspace, ready func()) (map[string]string, error) {
	attrs := make(map[string]string)

	mediaPath, err := r.ensureSource(ctx, job, ws)
	if err != nil {
		return attrs, err
	}
	attrs[jobs.AttrMediaPath] = mediaPath

	separationWAV := filepath.Join(ws.SourceDir(), separationAudioName)
	transcriptionWAV := filepath.Join(ws.SourceDir(), transcriptionAudioName)
	if err := r.decodeAudio(ctx, job, mediaPath, separationWAV, ffmpeg.SeparationProfile); err != nil {
		return attrs, err
	}
	if err := r.decodeAudio(ctx, job, mediaPath, transcriptionWAV, ffmpeg.TranscriptionProfile); err != nil {
		return attrs, err
	}
	ready()

	if job.Attr(jobs.AttrInstrumentalProvided) == "true" {
		r.appendLog(job.ID, "Separation skipped: instrumental supplied")
		return attrs, nil
	}

	instrumental := filepath.Join(ws.StemsDir(), instrumentalStemName)
	vocals := filepath.Join(ws.StemsDir(), vocalsStemName)
	if fileExists(instrumental) && fileExists(vocals) {
		r.appendLog(job.ID, "Separation skipped: stems already present")
		attrs[jobs.AttrInstrumentalPath] = instrumental
		attrs[jobs.AttrVocalsPath] = vocals
		return attrs, nil
	}

	if err := r.separate(ctx, job, ws, separationWAV, instrumental, vocals); err != nil {
		return attrs, err
	}
	attrs[jobs.AttrInstrumentalPath] = instrumental
	attrs[jobs.AttrVocalsPath] = vocals
	return attrs, nil
}

// ensureSource makes the source media available inside the workspace and
// returns its path. A media_path surviving from an earlier attempt
// short-circuits the download.
func (r *Runner) ensureSource(ctx context.Context, job *jobs.Job, ws staging.Workspace) (string, error) {
	if existing := job.Attr(jobs.AttrMediaPath); existing != "" && fileExists(existing) {
		return existing, nil
	}

	switch {
	case job.Attr(jobs.AttrSourcePath) != "":
		src := job.Attr(jobs.AttrSourcePath)
		dest := filepath.Join(ws.SourceDir(), filepath.Base(src))
		if fileExists(dest) {
			return dest, nil
		}
		if !fileExists(src) {
			return "", services.Wrap(services.ErrValidation, phaseName, "stage source file", src, os.ErrNotExist)
		}
		if err := fileutil.Copy(src, dest); err != nil {
			return "", services.Wrap(services.ErrTransient, phaseName, "stage source file", src, err)
		}
		r.appendLog(job.ID, fmt.Sprintf("Source staged from %s", src))
		return dest, nil

	case job.Attr(jobs.AttrSourceURL) != "":
		url := job.Attr(jobs.AttrSourceURL)
		toolCtx, cancel := r.toolContext(ctx, r.cfg.Acquisition.Timeout)
		defer cancel()
		start := time.Now()
		path, err := r.ytdlp.Download(toolCtx, url, ws.SourceDir())
		if err != nil {
			return "", services.Wrap(services.ToolFailure(toolCtx, err), phaseName, "download source", url, err)
		}
		r.appendLog(job.ID, fmt.Sprintf("Source downloaded in %s", time.Since(start).Round(time.Second)))
		return path, nil

	default:
		return "", services.Wrap(services.ErrValidation, phaseName, "acquire source", "job has neither source_path nor source_url", nil)
	}
}

func (r *Runner) decodeAudio(ctx context.Context, job *jobs.Job, source, dest string, profile ffmpeg.ExtractProfile) error {
	if fileExists(dest) {
		return nil
	}
	start := time.Now()
	if err := r.ffmpeg.ExtractAudio(ctx, source, dest, profile); err != nil {
		return services.Wrap(services.ToolFailure(ctx, err), phaseName, "decode audio", filepath.Base(dest), err)
	}
	r.appendLog(job.ID, fmt.Sprintf("Decoded %s in %s", filepath.Base(dest), time.Since(start).Round(time.Second)))
	return nil
}

// separate runs Demucs under a GPU slot lease and renames its output to the
// canonical stem paths. The lock wait runs under the caller's context; only
// the Demucs invocation itself is bounded by the separation timeout.
func (r *Runner) separate(ctx context.Context, job *jobs.Job, ws staging.Workspace, source, instrumental, vocals string) error {
	lease, err := r.gpu.Acquire(ctx, job.DisplayName())
	if err != nil {
		return services.Wrap(services.ErrContention, phaseName, "acquire gpu slot", "", err)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			r.logger.Warn("gpu slot release failed", logging.Args(
				logging.String("job_id", job.ID),
				logging.Error(err),
			)...)
		}
	}()
	r.appendLog(job.ID, fmt.Sprintf("GPU slot %d acquired", lease.Slot()))

	toolCtx, cancel := r.toolContext(ctx, r.cfg.Separation.Timeout)
	defer cancel()

	start := time.Now()
	stems, err := r.demucs.Separate(toolCtx, source, ws.StemsDir())
	if err != nil {
		return services.Wrap(services.ToolFailure(toolCtx, err), phaseName, "separate stems", "", err)
	}
	if err := os.Rename(stems.InstrumentalPath, instrumental); err != nil {
		return services.Wrap(services.ErrTransient, phaseName, "place instrumental stem", "", err)
	}
	if err := os.Rename(stems.VocalsPath, vocals); err != nil {
		return services.Wrap(services.ErrTransient, phaseName, "place vocal stem", "", err)
	}
	r.appendLog(job.ID, fmt.Sprintf("Stems separated in %s", time.Since(start).Round(time.Second)))
	return nil
}

// runLyrics waits for the decoded audio, transcribes it, and writes the draft
// corrections file. An existing corrections file is preserved untouched so a
// retry never clobbers human edits.
func (r *Runner) runLyrics(ctx context.Context, job *jobs.Job, ws staging.Workspace, audioReady <-chan struct{}) (map[string]string, error) {
	attrs := make(map[string]string)

	if job.Attr(jobs.AttrLyricsDisabled) == "true" {
		r.appendLog(job.ID, "Transcription skipped: lyrics disabled")
		return attrs, nil
	}
	correctionsPath := ws.CorrectionsPath()
	if fileExists(correctionsPath) {
		r.appendLog(job.ID, "Transcription skipped: corrections file already present")
		attrs[jobs.AttrCorrectionsPath] = correctionsPath
		return attrs, nil
	}

	select {
	case <-ctx.Done():
		return attrs, services.Wrap(services.ErrTransient, phaseName, "await decoded audio", "", ctx.Err())
	case <-audioReady:
	}

	source := filepath.Join(ws.SourceDir(), transcriptionAudioName)
	if !fileExists(source) {
		return attrs, services.Wrap(services.ErrTransient, phaseName, "transcribe", "decoded audio unavailable", nil)
	}

	toolCtx, cancel := r.toolContext(ctx, r.cfg.Transcription.Timeout)
	defer cancel()

	start := time.Now()
	result, err := r.whisperx.Transcribe(toolCtx, source, ws.LyricsDir())
	if err != nil {
		return attrs, services.Wrap(services.ToolFailure(toolCtx, err), phaseName, "transcribe", "", err)
	}
	segments, err := whisperx.LoadSegments(result.JSONPath)
	if err != nil {
		return attrs, services.Wrap(services.ErrExternalTool, phaseName, "load transcription", "", err)
	}

	draft := lyrics.FromSegments(segments, r.cfg.Transcription.Language)
	if err := draft.Validate(); err != nil {
		return attrs, services.Wrap(services.ErrExternalTool, phaseName, "build draft corrections", "", err)
	}
	if err := lyrics.Save(correctionsPath, draft); err != nil {
		return attrs, services.Wrap(services.ErrTransient, phaseName, "write draft corrections", "", err)
	}
	r.appendLog(job.ID, fmt.Sprintf("Transcribed %d lines in %s", len(draft.Lines), time.Since(start).Round(time.Second)))
	attrs[jobs.AttrCorrectionsPath] = correctionsPath
	return attrs, nil
}

// toolContext bounds an external tool invocation with the configured timeout
// in seconds; zero or negative means no deadline.
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
