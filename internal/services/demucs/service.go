package demucs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Config captures runtime settings for Demucs separation.
type Config struct {
	// Model is the Demucs model to use (e.g., "htdemucs").
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
}

// Demucs invocation constants.
const (
	DefaultModel  = "htdemucs"
	TwoStemTarget = "vocals"
	CPUDevice     = "cpu"
	CUDADevice    = "cuda"
)

// Stems holds the separated output paths for a track.
type Stems struct {
	// VocalsPath is the isolated vocal stem.
	VocalsPath string
	// InstrumentalPath is everything but the vocals.
	InstrumentalPath string
}

// Service provides Demucs stem separation.
type Service struct {
	cfg           Config
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a Demucs service with the given configuration.
func NewService(cfg Config, binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "demucs"
	}
	return &Service{cfg: cfg, binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Separate splits source into vocal and instrumental stems under outputDir.
// Demucs writes to <outputDir>/<model>/<track>/, where track is the source
// base name without extension.
func (s *Service) Separate(ctx context.Context, source, outputDir string) (Stems, error) {
	var stems Stems

	if source == "" {
		return stems, fmt.Errorf("separate: source path required")
	}
	if outputDir == "" {
		return stems, fmt.Errorf("separate: output dir required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return stems, fmt.Errorf("separate: ensure output dir: %w", err)
	}

	args := s.buildArgs(source, outputDir)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return stems, fmt.Errorf("demucs: %w", err)
	}

	track := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	stemDir := filepath.Join(outputDir, s.Model(), track)
	stems.VocalsPath = filepath.Join(stemDir, "vocals.wav")
	stems.InstrumentalPath = filepath.Join(stemDir, "no_vocals.wav")

	for _, path := range []string{stems.VocalsPath, stems.InstrumentalPath} {
		if _, err := os.Stat(path); err != nil {
			return Stems{}, fmt.Errorf("demucs: expected stem missing: %s: %w", path, err)
		}
	}
	return stems, nil
}

// buildArgs constructs the Demucs command arguments.
func (s *Service) buildArgs(source, outputDir string) []string {
	device := CPUDevice
	if s.cfg.CUDAEnabled {
		device = CUDADevice
	}
	return []string{
		"--two-stems", TwoStemTarget,
		"-n", s.Model(),
		"-o", outputDir,
		"-d", device,
		source,
	}
}
