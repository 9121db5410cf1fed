package encoding

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

type probeStub struct {
	smiErr       error
	encoders     string
	encodersErr  error
	linkerCache  string
	linkerErr    error
	smokeErr     error
	smokeRuns    int
	capturedArgs [][]string
}

func (s *probeStub) run(ctx context.Context, name string, args ...string) error {
	if strings.Contains(name, "nvidia-smi") && len(args) == 0 {
		return s.smiErr
	}
	s.smokeRuns++
	s.capturedArgs = append(s.capturedArgs, args)
	return s.smokeErr
}

func (s *probeStub) capture(ctx context.Context, name string, args ...string) (string, error) {
	if name == "ldconfig" {
		return s.linkerCache, s.linkerErr
	}
	return s.encoders, s.encodersErr
}

func workingStub() *probeStub {
	return &probeStub{
		encoders:    " V....D h264_nvenc  NVIDIA NVENC H.264 encoder\n",
		linkerCache: "libnvidia-encode.so.1 (libc6,x86-64) => /lib/libnvidia-encode.so.1\n",
	}
}

func newStubbedProber(stub *probeStub) *Prober {
	prober := NewProber("ffmpeg", "nvidia-smi")
	prober.WithRunners(stub.run, stub.capture)
	return prober
}

func TestDetectAllChecksPass(t *testing.T) {
	stub := workingStub()
	result := newStubbedProber(stub).Detect(context.Background())

	if !result.Available {
		t.Fatalf("Detect() unavailable: %s", result.Reason)
	}
	if stub.smokeRuns != 1 {
		t.Fatalf("smoke encode ran %d times, want 1", stub.smokeRuns)
	}
	smoke := stub.capturedArgs[0]
	if !slices.Contains(smoke, "lavfi") || !slices.Contains(smoke, "color=black:s=256x256:d=1") {
		t.Errorf("smoke encode args missing synthetic source: %v", smoke)
	}
	if idx := slices.Index(smoke, "-c:v"); idx < 0 || smoke[idx+1] != "h264_nvenc" {
		t.Errorf("smoke encode should use h264_nvenc: %v", smoke)
	}
}

func TestDetectFailuresStopEarly(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*probeStub)
		wantReason string
		wantSmoke  int
	}{
		{
			name:       "nvidia-smi missing",
			mutate:     func(s *probeStub) { s.smiErr = errors.New("exec: not found") },
			wantReason: "nvidia-smi",
			wantSmoke:  0,
		},
		{
			name:       "encoder not listed",
			mutate:     func(s *probeStub) { s.encoders = " V....D libx264  H.264\n" },
			wantReason: "h264_nvenc",
			wantSmoke:  0,
		},
		{
			name:       "encoder listing fails",
			mutate:     func(s *probeStub) { s.encodersErr = errors.New("boom") },
			wantReason: "encoders",
			wantSmoke:  0,
		},
		{
			name:       "runtime library missing",
			mutate:     func(s *probeStub) { s.linkerCache = "libc.so.6 => /lib/libc.so.6\n" },
			wantReason: "libnvidia-encode.so.1",
			wantSmoke:  0,
		},
		{
			name:       "smoke encode fails",
			mutate:     func(s *probeStub) { s.smokeErr = errors.New("no capable devices") },
			wantReason: "smoke encode",
			wantSmoke:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := workingStub()
			tc.mutate(stub)
			result := newStubbedProber(stub).Detect(context.Background())

			if result.Available {
				t.Fatal("Detect() reported available")
			}
			if !strings.Contains(result.Reason, tc.wantReason) {
				t.Errorf("Reason = %q, want mention of %q", result.Reason, tc.wantReason)
			}
			if stub.smokeRuns != tc.wantSmoke {
				t.Errorf("smoke encode ran %d times, want %d", stub.smokeRuns, tc.wantSmoke)
			}
		})
	}
}
