package encoding

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	langpkg "stagehand/internal/language"
)

// Variant identifies one of the deliverable shapes produced at finalization.
type Variant string

const (
	// VariantMaster is the lossless archive copy: video remuxed untouched,
	// audio as FLAC, in MKV.
	VariantMaster Variant = "lossless_master"
	// VariantLosslessUpload keeps FLAC audio in an MP4 for platforms that
	// re-encode on ingest.
	VariantLosslessUpload Variant = "lossless_upload"
	// VariantLossy is the general distribution MP4 (H.264 + AAC).
	VariantLossy Variant = "lossy"
	// VariantLossy720p is the reduced-resolution distribution MP4.
	VariantLossy720p Variant = "lossy_720p"
)

// Artifact is one planned output file.
type Artifact struct {
	Variant Variant
	Video   string
	Audio   string
	Output  string
	// Remux artifacts copy the video stream; no encoder choice applies.
	Remux bool
}

// Plan is the ordered set of artifacts for one finalization.
type Plan struct {
	Artifacts []Artifact
}

// PlanRequest names the inputs for a finalization encode.
type PlanRequest struct {
	// Video is the rendered karaoke video (lyrics burned in).
	Video string
	// Audio is the selected instrumental track.
	Audio string
	// OutputDir receives the four deliverables.
	OutputDir string
	// BaseName is the deliverable stem, typically "CODE - Artist - Title".
	BaseName string
}

// variantSuffixes maps each variant to its file name tail.
var variantSuffixes = map[Variant]string{
	VariantMaster:         " (Final Karaoke Lossless).mkv",
	VariantLosslessUpload: " (Final Karaoke Lossless).mp4",
	VariantLossy:          " (Final Karaoke Lossy).mp4",
	VariantLossy720p:      " (Final Karaoke Lossy 720p).mp4",
}

// BuildPlan lays out the four deliverable artifacts for the request.
func BuildPlan(req PlanRequest) (Plan, error) {
	if strings.TrimSpace(req.Video) == "" {
		return Plan{}, fmt.Errorf("encode plan: video path required")
	}
	if strings.TrimSpace(req.Audio) == "" {
		return Plan{}, fmt.Errorf("encode plan: audio path required")
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return Plan{}, fmt.Errorf("encode plan: output dir required")
	}
	base := strings.TrimSpace(req.BaseName)
	if base == "" {
		return Plan{}, fmt.Errorf("encode plan: base name required")
	}

	order := []Variant{VariantMaster, VariantLosslessUpload, VariantLossy, VariantLossy720p}
	artifacts := make([]Artifact, 0, len(order))
	for _, variant := range order {
		artifacts = append(artifacts, Artifact{
			Variant: variant,
			Video:   req.Video,
			Audio:   req.Audio,
			Output:  filepath.Join(req.OutputDir, base+variantSuffixes[variant]),
			Remux:   variant == VariantMaster,
		})
	}
	return Plan{Artifacts: artifacts}, nil
}

// Settings carries the encoder tuning shared by all artifacts of a run.
type Settings struct {
	// Quality is the CRF/CQ value for H.264 encodes.
	Quality int
	// Preset is the libx264 preset for software encodes.
	Preset string
	// Language tags the audio stream; empty leaves it untagged.
	Language string
}

// BuildArgs constructs the full ffmpeg argv for one artifact. hardware
// selects h264_nvenc; remux artifacts ignore it.
func BuildArgs(artifact Artifact, hardware bool, settings Settings) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", artifact.Video,
		"-i", artifact.Audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}

	if artifact.Variant == VariantLossy720p {
		args = append(args, "-vf", "scale=-2:720")
	}

	if artifact.Remux {
		args = append(args, "-c:v", "copy")
	} else if hardware {
		args = append(args,
			"-c:v", "h264_nvenc",
			"-preset", "p4",
			"-rc", "vbr",
			"-cq", strconv.Itoa(settings.Quality),
			"-b:v", "0",
			"-pix_fmt", "yuv420p",
		)
	} else {
		preset := strings.TrimSpace(settings.Preset)
		if preset == "" {
			preset = "medium"
		}
		args = append(args,
			"-c:v", "libx264",
			"-crf", strconv.Itoa(settings.Quality),
			"-preset", preset,
			"-pix_fmt", "yuv420p",
		)
	}

	switch artifact.Variant {
	case VariantMaster:
		args = append(args, "-c:a", "flac")
	case VariantLosslessUpload:
		// FLAC in MP4 still needs the experimental flag.
		args = append(args, "-c:a", "flac", "-strict", "-2")
	default:
		args = append(args, "-c:a", "aac", "-b:a", "320k")
	}

	if lang := langpkg.ToISO3(settings.Language); settings.Language != "" && lang != "und" {
		args = append(args, "-metadata:s:a:0", "language="+lang)
	}

	if strings.EqualFold(filepath.Ext(artifact.Output), ".mp4") {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, artifact.Output)
	return args
}
