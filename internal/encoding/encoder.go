package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stagehand/internal/config"
	"stagehand/internal/logging"
	ffmpegsvc "stagehand/internal/media/ffmpeg"
	"stagehand/internal/services"
)

const probeTimeout = 30 * time.Second

// Encoder produces the finalization deliverables. Hardware capability is
// probed once per Encoder lifetime; a failed probe pins the process to
// software encodes.
type Encoder struct {
	ffmpeg         *ffmpegsvc.Service
	prober         *Prober
	settings       Settings
	hardwareWanted bool
	logger         *slog.Logger

	probeOnce sync.Once
	hardware  bool
}

// NewEncoder builds an Encoder from configuration.
func NewEncoder(cfg *config.Config, logger *slog.Logger) *Encoder {
	return &Encoder{
		ffmpeg: ffmpegsvc.NewService(cfg.FFmpegBinary()),
		prober: NewProber(cfg.FFmpegBinary(), cfg.NvidiaSmiBinary()),
		settings: Settings{
			Quality:  cfg.Encoding.Quality,
			Preset:   cfg.Encoding.Preset,
			Language: cfg.Transcription.Language,
		},
		hardwareWanted: cfg.Encoding.HardwareEnabled,
		logger:         logging.NewComponentLogger(logger, "encoding"),
	}
}

// FFmpeg exposes the underlying service so tests can swap the runner.
func (e *Encoder) FFmpeg() *ffmpegsvc.Service {
	return e.ffmpeg
}

// Prober exposes the capability prober so tests can swap its runners.
func (e *Encoder) Prober() *Prober {
	return e.prober
}

// HardwareEnabled reports whether this process encodes with NVENC. The first
// call runs the probe; later calls return the pinned answer. The probe runs
// detached from the caller's cancellation so one aborted job cannot disable
// hardware for the rest of the process.
func (e *Encoder) HardwareEnabled(ctx context.Context) bool {
	e.probeOnce.Do(func() {
		if !e.hardwareWanted {
			e.logger.Info("hardware encoding disabled by configuration")
			return
		}
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()
		result := e.prober.Detect(probeCtx)
		e.hardware = result.Available
		if result.Available {
			e.logger.Info("hardware encoding enabled", logging.String("encoder", "h264_nvenc"))
		} else {
			e.logger.Warn("hardware encoding unavailable; using software",
				logging.String("reason", result.Reason))
		}
	})
	return e.hardware
}

// EncodeAll produces every artifact in the plan, in order. The first failed
// artifact aborts the run.
func (e *Encoder) EncodeAll(ctx context.Context, plan Plan) error {
	for _, artifact := range plan.Artifacts {
		if err := e.Encode(ctx, artifact); err != nil {
			return err
		}
	}
	return nil
}

// Encode produces one artifact. Outputs that already exist are kept, so a
// retried finalization only redoes missing work.
func (e *Encoder) Encode(ctx context.Context, artifact Artifact) error {
	if _, err := os.Stat(artifact.Output); err == nil {
		e.logger.Info("artifact already present; skipping",
			logging.String("variant", string(artifact.Variant)),
			logging.String("output", artifact.Output))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(artifact.Output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "encoding", "prepare output dir",
			filepath.Dir(artifact.Output), err)
	}

	started := time.Now()

	if artifact.Remux {
		if err := e.ffmpeg.Run(ctx, BuildArgs(artifact, false, e.settings)...); err != nil {
			return services.Wrap(services.ErrExternalTool, "encoding", "remux",
				fmt.Sprintf("produce %s", artifact.Variant), err)
		}
		e.logArtifact(artifact, false, started)
		return nil
	}

	if e.HardwareEnabled(ctx) {
		err := e.ffmpeg.Run(ctx, BuildArgs(artifact, true, e.settings)...)
		if err == nil {
			e.logArtifact(artifact, true, started)
			return nil
		}
		// The error string carries the tool's combined output.
		e.logger.Warn("hardware encode failed; retrying with software",
			logging.String("variant", string(artifact.Variant)),
			logging.Error(err))
	}

	if err := e.ffmpeg.Run(ctx, BuildArgs(artifact, false, e.settings)...); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "software encode",
			fmt.Sprintf("produce %s", artifact.Variant), err)
	}
	e.logArtifact(artifact, false, started)
	return nil
}

func (e *Encoder) logArtifact(artifact Artifact, hardware bool, started time.Time) {
	e.logger.Info("artifact encoded",
		logging.String("variant", string(artifact.Variant)),
		logging.String("output", filepath.Base(artifact.Output)),
		logging.Bool("hardware", hardware),
		logging.Duration("encode_duration", time.Since(started)),
	)
}
