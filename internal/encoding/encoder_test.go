package encoding

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"stagehand/internal/config"
	"stagehand/internal/logging"
	"stagehand/internal/services"
)

func newTestEncoder(t *testing.T, hardwareWanted bool) *Encoder {
	t.Helper()
	cfg := config.Default()
	cfg.Encoding.HardwareEnabled = hardwareWanted
	cfg.Encoding.Quality = 18
	enc := NewEncoder(&cfg, logging.NewNop())
	stub := workingStub()
	enc.Prober().WithRunners(stub.run, stub.capture)
	return enc
}

func testArtifact(t *testing.T, variant Variant, remux bool) Artifact {
	t.Helper()
	dir := t.TempDir()
	ext := ".mp4"
	if remux {
		ext = ".mkv"
	}
	return Artifact{
		Variant: variant,
		Video:   filepath.Join(dir, "render.mp4"),
		Audio:   filepath.Join(dir, "instrumental.flac"),
		Output:  filepath.Join(dir, "out"+ext),
		Remux:   remux,
	}
}

func TestEncodeFallsBackToSoftwareOnce(t *testing.T) {
	enc := newTestEncoder(t, true)
	artifact := testArtifact(t, VariantLossy, false)

	var attempts [][]string
	enc.FFmpeg().WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		attempts = append(attempts, args)
		if slices.Contains(args, "h264_nvenc") {
			return errors.New("nvenc: out of memory")
		}
		return os.WriteFile(args[len(args)-1], []byte("x"), 0o644)
	})

	if err := enc.Encode(context.Background(), artifact); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("ffmpeg ran %d times, want hardware then software", len(attempts))
	}
	if !slices.Contains(attempts[0], "h264_nvenc") {
		t.Errorf("first attempt should be hardware: %v", attempts[0])
	}
	if !slices.Contains(attempts[1], "libx264") {
		t.Errorf("second attempt should be software: %v", attempts[1])
	}
	if _, err := os.Stat(artifact.Output); err != nil {
		t.Errorf("output missing after fallback: %v", err)
	}
}

func TestEncodeSoftwareFailureIsFatal(t *testing.T) {
	enc := newTestEncoder(t, false)
	artifact := testArtifact(t, VariantLossy, false)

	enc.FFmpeg().WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("encoder exploded")
	})

	err := enc.Encode(context.Background(), artifact)
	if err == nil {
		t.Fatal("Encode() succeeded despite software failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool classification", err)
	}
}

func TestEncodeSkipsExistingOutput(t *testing.T) {
	enc := newTestEncoder(t, false)
	artifact := testArtifact(t, VariantLossy, false)
	if err := os.WriteFile(artifact.Output, []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}

	ran := false
	enc.FFmpeg().WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		ran = true
		return nil
	})

	if err := enc.Encode(context.Background(), artifact); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if ran {
		t.Fatal("ffmpeg ran for an artifact that already exists")
	}
}

func TestRemuxNeverTriesHardware(t *testing.T) {
	enc := newTestEncoder(t, true)
	artifact := testArtifact(t, VariantMaster, true)

	var attempts [][]string
	enc.FFmpeg().WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		attempts = append(attempts, args)
		return os.WriteFile(args[len(args)-1], []byte("x"), 0o644)
	})

	if err := enc.Encode(context.Background(), artifact); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("ffmpeg ran %d times, want 1", len(attempts))
	}
	if slices.Contains(attempts[0], "h264_nvenc") || slices.Contains(attempts[0], "libx264") {
		t.Errorf("remux picked an encoder: %v", attempts[0])
	}
}

func TestHardwareProbeRunsOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Encoding.HardwareEnabled = true
	enc := NewEncoder(&cfg, logging.NewNop())

	detects := 0
	stub := workingStub()
	enc.Prober().WithRunners(
		func(ctx context.Context, name string, args ...string) error {
			if len(args) == 0 {
				detects++
			}
			return stub.run(ctx, name, args...)
		},
		stub.capture,
	)

	ctx := context.Background()
	if !enc.HardwareEnabled(ctx) {
		t.Fatal("expected hardware enabled with passing probe")
	}
	enc.HardwareEnabled(ctx)
	enc.HardwareEnabled(ctx)
	if detects != 1 {
		t.Fatalf("probe ran %d times, want 1", detects)
	}
}

func TestHardwareDisabledByConfig(t *testing.T) {
	enc := newTestEncoder(t, false)
	if enc.HardwareEnabled(context.Background()) {
		t.Fatal("hardware should stay off when configuration disables it")
	}
}
