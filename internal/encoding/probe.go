package encoding

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ProbeResult reports whether NVENC hardware encoding is usable and, when it
// is not, which check ruled it out.
type ProbeResult struct {
	Available bool
	Reason    string
}

// Prober detects NVENC availability. All four checks must pass: the vendor
// tool runs, ffmpeg lists the encoder, the encode runtime library is in the
// linker cache, and a one-second synthetic clip actually encodes.
type Prober struct {
	ffmpegBinary    string
	nvidiaSmiBinary string
	runCommand      func(ctx context.Context, name string, args ...string) error
	captureCommand  func(ctx context.Context, name string, args ...string) (string, error)
}

// NewProber builds a Prober for the given tool binaries.
func NewProber(ffmpegBinary, nvidiaSmiBinary string) *Prober {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(nvidiaSmiBinary) == "" {
		nvidiaSmiBinary = "nvidia-smi"
	}
	return &Prober{
		ffmpegBinary:    ffmpegBinary,
		nvidiaSmiBinary: nvidiaSmiBinary,
		runCommand:      defaultRun,
		captureCommand:  defaultCapture,
	}
}

// WithRunners sets custom command runners (for testing).
func (p *Prober) WithRunners(
	run func(ctx context.Context, name string, args ...string) error,
	capture func(ctx context.Context, name string, args ...string) (string, error),
) {
	if run != nil {
		p.runCommand = run
	}
	if capture != nil {
		p.captureCommand = capture
	}
}

func defaultRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func defaultCapture(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}

// smokeEncodeArgs is the synthetic clip used to prove the encoder works end
// to end, not just that it is listed.
func smokeEncodeArgs() []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", "color=black:s=256x256:d=1",
		"-c:v", "h264_nvenc",
		"-f", "null", "-",
	}
}

// Detect runs the four checks in order and stops at the first failure.
func (p *Prober) Detect(ctx context.Context) ProbeResult {
	if err := p.runCommand(ctx, p.nvidiaSmiBinary); err != nil {
		return ProbeResult{Reason: fmt.Sprintf("nvidia-smi not runnable: %v", err)}
	}

	encoders, err := p.captureCommand(ctx, p.ffmpegBinary, "-hide_banner", "-encoders")
	if err != nil {
		return ProbeResult{Reason: fmt.Sprintf("list ffmpeg encoders: %v", err)}
	}
	if !strings.Contains(encoders, "h264_nvenc") {
		return ProbeResult{Reason: "h264_nvenc not in ffmpeg encoder list"}
	}

	libs, err := p.captureCommand(ctx, "ldconfig", "-p")
	if err != nil {
		return ProbeResult{Reason: fmt.Sprintf("read linker cache: %v", err)}
	}
	if !strings.Contains(libs, "libnvidia-encode.so.1") {
		return ProbeResult{Reason: "libnvidia-encode.so.1 not in linker cache"}
	}

	if err := p.runCommand(ctx, p.ffmpegBinary, smokeEncodeArgs()...); err != nil {
		return ProbeResult{Reason: fmt.Sprintf("nvenc smoke encode failed: %v", err)}
	}

	return ProbeResult{Available: true}
}
