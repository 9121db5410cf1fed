package whisperx

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestBuildArgsCPU(t *testing.T) {
	svc := NewService(Config{Model: "small", Language: "english"}, "whisperx")
	args := svc.buildArgs("/tmp/audio.wav", "/tmp/out")

	if args[0] != "/tmp/audio.wav" {
		t.Fatalf("first arg = %q, want source path", args[0])
	}
	wantPairs := [][2]string{
		{"--model", "small"},
		{"--output_dir", "/tmp/out"},
		{"--output_format", "all"},
		{"--vad_method", "silero"},
		{"--language", "en"},
		{"--device", "cpu"},
		{"--compute_type", "float32"},
	}
	for _, pair := range wantPairs {
		idx := slices.Index(args, pair[0])
		if idx < 0 || idx+1 >= len(args) || args[idx+1] != pair[1] {
			t.Errorf("args missing %q %q: %v", pair[0], pair[1], args)
		}
	}
}

func TestBuildArgsCUDA(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true}, "whisperx")
	args := svc.buildArgs("in.wav", "out")

	if idx := slices.Index(args, "--device"); idx < 0 || args[idx+1] != "cuda" {
		t.Fatalf("expected cuda device, got %v", args)
	}
	if slices.Contains(args, "--compute_type") {
		t.Fatalf("compute_type should not be forced on CUDA: %v", args)
	}
	if idx := slices.Index(args, "--model"); idx < 0 || args[idx+1] != DefaultModel {
		t.Fatalf("expected default model, got %v", args)
	}
	if slices.Contains(args, "--language") {
		t.Fatalf("language flag should be omitted when unset: %v", args)
	}
}

func TestTranscribeDerivesOutputPaths(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{}, "whisperx")

	var ranArgs []string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		ranArgs = append([]string{name}, args...)
		payload := `{"segments":[{"text":" Hello there ","start":0,"end":1.5,"words":[{"word":"Hello","start":0,"end":0.7}]}]}`
		return os.WriteFile(filepath.Join(dir, "track.json"), []byte(payload), 0o644)
	})

	result, err := svc.Transcribe(context.Background(), filepath.Join(dir, "track.wav"), dir)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if ranArgs[0] != "whisperx" {
		t.Fatalf("ran %q, want whisperx", ranArgs[0])
	}
	if result.JSONPath != filepath.Join(dir, "track.json") {
		t.Errorf("JSONPath = %q", result.JSONPath)
	}
	if result.SRTPath != filepath.Join(dir, "track.srt") {
		t.Errorf("SRTPath = %q", result.SRTPath)
	}
	if result.Text != "Hello there" {
		t.Errorf("Text = %q, want trimmed segment text", result.Text)
	}
}

func TestTranscribeRequiresSource(t *testing.T) {
	svc := NewService(Config{}, "")
	if _, err := svc.Transcribe(context.Background(), "", "out"); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestLoadSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.json")
	payload := `{"segments":[{"text":"one two","start":1,"end":2,"words":[{"word":"one","start":1,"end":1.4},{"word":"two","start":1.5,"end":2}]}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	segments, err := LoadSegments(path)
	if err != nil {
		t.Fatalf("LoadSegments() error = %v", err)
	}
	if len(segments) != 1 || len(segments[0].Words) != 2 {
		t.Fatalf("unexpected segments: %#v", segments)
	}
	if segments[0].Words[1].Word != "two" || segments[0].Words[1].Start != 1.5 {
		t.Fatalf("unexpected word timing: %#v", segments[0].Words[1])
	}
}

func TestLoadSegmentsRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSegments(path); err == nil {
		t.Fatal("expected parse error")
	}
}
