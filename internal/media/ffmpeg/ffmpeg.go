package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Service executes ffmpeg with a swappable command runner so callers can
// exercise argument construction without a real binary.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates an ffmpeg service for the given binary path.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Binary returns the configured ffmpeg binary path.
func (s *Service) Binary() string {
	return s.binary
}

// Run invokes ffmpeg with the provided arguments. Failures carry the trimmed
// combined output so logs show what the encoder printed.
func (s *Service) Run(ctx context.Context, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExtractProfile selects the output shape of an audio extraction.
type ExtractProfile int

const (
	// TranscriptionProfile produces the mono 16kHz WAV WhisperX expects.
	TranscriptionProfile ExtractProfile = iota
	// SeparationProfile produces the stereo 44.1kHz WAV Demucs works from.
	SeparationProfile
)

// ExtractAudio decodes the first audio stream of source into a PCM WAV at
// dest, shaped for the given profile.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string, profile ExtractProfile) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("extract audio: source path required")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("extract audio: dest path required")
	}
	return s.Run(ctx, buildExtractArgs(source, dest, profile)...)
}

// buildExtractArgs constructs the ffmpeg arguments for an audio extraction.
func buildExtractArgs(source, dest string, profile ExtractProfile) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
	}
	switch profile {
	case SeparationProfile:
		args = append(args, "-ac", "2", "-ar", "44100")
	default:
		args = append(args, "-ac", "1", "-ar", "16000")
	}
	args = append(args, "-c:a", "pcm_s16le", dest)
	return args
}
