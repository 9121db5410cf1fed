package encoding

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestBuildPlanLaysOutFourVariants(t *testing.T) {
	plan, err := BuildPlan(PlanRequest{
		Video:     "/work/render.mp4",
		Audio:     "/work/instrumental.flac",
		OutputDir: "/work/final",
		BaseName:  "KV-0042 - Queen - Bohemian Rhapsody",
	})
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(plan.Artifacts) != 4 {
		t.Fatalf("artifact count = %d, want 4", len(plan.Artifacts))
	}

	wantOrder := []Variant{VariantMaster, VariantLosslessUpload, VariantLossy, VariantLossy720p}
	for i, artifact := range plan.Artifacts {
		if artifact.Variant != wantOrder[i] {
			t.Errorf("artifact[%d].Variant = %s, want %s", i, artifact.Variant, wantOrder[i])
		}
		if artifact.Video != "/work/render.mp4" || artifact.Audio != "/work/instrumental.flac" {
			t.Errorf("artifact[%d] inputs = %q, %q", i, artifact.Video, artifact.Audio)
		}
		if artifact.Remux != (artifact.Variant == VariantMaster) {
			t.Errorf("artifact[%d].Remux = %v for %s", i, artifact.Remux, artifact.Variant)
		}
	}

	master := plan.Artifacts[0]
	if master.Output != filepath.Join("/work/final", "KV-0042 - Queen - Bohemian Rhapsody (Final Karaoke Lossless).mkv") {
		t.Errorf("master output = %q", master.Output)
	}
	if got := plan.Artifacts[3].Output; !strings.HasSuffix(got, " (Final Karaoke Lossy 720p).mp4") {
		t.Errorf("720p output = %q", got)
	}
}

func TestBuildPlanValidation(t *testing.T) {
	base := PlanRequest{Video: "v", Audio: "a", OutputDir: "d", BaseName: "b"}
	for _, tc := range []struct {
		name   string
		mutate func(*PlanRequest)
	}{
		{"video", func(r *PlanRequest) { r.Video = "" }},
		{"audio", func(r *PlanRequest) { r.Audio = " " }},
		{"output dir", func(r *PlanRequest) { r.OutputDir = "" }},
		{"base name", func(r *PlanRequest) { r.BaseName = "  " }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := BuildPlan(req); err == nil {
				t.Fatalf("BuildPlan() accepted missing %s", tc.name)
			}
		})
	}
}

func hasPair(args []string, flag, value string) bool {
	idx := slices.Index(args, flag)
	return idx >= 0 && idx+1 < len(args) && args[idx+1] == value
}

func TestBuildArgsMasterRemux(t *testing.T) {
	artifact := Artifact{Variant: VariantMaster, Video: "v.mp4", Audio: "a.flac", Output: "out.mkv", Remux: true}
	args := BuildArgs(artifact, true, Settings{Quality: 18})

	if !hasPair(args, "-c:v", "copy") {
		t.Errorf("remux should copy video: %v", args)
	}
	if !hasPair(args, "-c:a", "flac") {
		t.Errorf("master should use FLAC audio: %v", args)
	}
	if slices.Contains(args, "h264_nvenc") || slices.Contains(args, "libx264") {
		t.Errorf("remux must not pick an encoder: %v", args)
	}
	if slices.Contains(args, "-movflags") {
		t.Errorf("mkv output should not set faststart: %v", args)
	}
}

func TestBuildArgsLossyHardwareAndSoftware(t *testing.T) {
	artifact := Artifact{Variant: VariantLossy, Video: "v.mp4", Audio: "a.flac", Output: "out.mp4"}

	hw := BuildArgs(artifact, true, Settings{Quality: 20, Preset: "slow"})
	if !hasPair(hw, "-c:v", "h264_nvenc") || !hasPair(hw, "-cq", "20") {
		t.Errorf("hardware args wrong: %v", hw)
	}
	if !hasPair(hw, "-c:a", "aac") || !hasPair(hw, "-b:a", "320k") {
		t.Errorf("lossy audio args wrong: %v", hw)
	}
	if !hasPair(hw, "-movflags", "+faststart") {
		t.Errorf("mp4 output should set faststart: %v", hw)
	}

	sw := BuildArgs(artifact, false, Settings{Quality: 20, Preset: "slow"})
	if !hasPair(sw, "-c:v", "libx264") || !hasPair(sw, "-crf", "20") || !hasPair(sw, "-preset", "slow") {
		t.Errorf("software args wrong: %v", sw)
	}

	defaulted := BuildArgs(artifact, false, Settings{Quality: 20})
	if !hasPair(defaulted, "-preset", "medium") {
		t.Errorf("preset should default to medium: %v", defaulted)
	}
}

func TestBuildArgsLosslessUploadKeepsFLACInMP4(t *testing.T) {
	artifact := Artifact{Variant: VariantLosslessUpload, Video: "v.mp4", Audio: "a.flac", Output: "out.mp4"}
	args := BuildArgs(artifact, false, Settings{Quality: 18})

	if !hasPair(args, "-c:a", "flac") {
		t.Errorf("upload variant should keep FLAC: %v", args)
	}
	if !hasPair(args, "-strict", "-2") {
		t.Errorf("FLAC in MP4 needs the experimental flag: %v", args)
	}
}

func TestBuildArgs720pScales(t *testing.T) {
	artifact := Artifact{Variant: VariantLossy720p, Video: "v.mp4", Audio: "a.flac", Output: "out.mp4"}
	args := BuildArgs(artifact, false, Settings{Quality: 18})

	if !hasPair(args, "-vf", "scale=-2:720") {
		t.Errorf("720p variant should scale: %v", args)
	}

	full := BuildArgs(Artifact{Variant: VariantLossy, Video: "v", Audio: "a", Output: "o.mp4"}, false, Settings{Quality: 18})
	if slices.Contains(full, "-vf") {
		t.Errorf("full-resolution variant should not scale: %v", full)
	}
}

func TestBuildArgsLanguageMetadata(t *testing.T) {
	artifact := Artifact{Variant: VariantLossy, Video: "v", Audio: "a", Output: "o.mp4"}

	tagged := BuildArgs(artifact, false, Settings{Quality: 18, Language: "en"})
	if !hasPair(tagged, "-metadata:s:a:0", "language=eng") {
		t.Errorf("expected ISO 639-2 language tag: %v", tagged)
	}

	untagged := BuildArgs(artifact, false, Settings{Quality: 18})
	if slices.Contains(untagged, "-metadata:s:a:0") {
		t.Errorf("no language configured, no tag expected: %v", untagged)
	}
}
