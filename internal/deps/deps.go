package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"stagehand/internal/config"
)

// Requirement defines an external tool Stagehand shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Required builds the tool list for the given configuration. rclone is only
// required when a remote is configured; nvidia-smi is always optional because
// encoding falls back to software.
func Required(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "decode, render, and encode video"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "inspect media files"},
		{Name: "Demucs", Command: cfg.DemucsBinary(), Description: "separate vocal and instrumental stems"},
		{Name: "WhisperX", Command: cfg.WhisperXBinary(), Description: "transcribe lyrics with word timestamps"},
		{Name: "yt-dlp", Command: cfg.YtdlpBinary(), Description: "download source media from URLs"},
		{Name: "rclone", Command: cfg.RcloneBinary(), Description: "publish finished videos to the remote", Optional: cfg.Archive.Remote == ""},
		{Name: "nvidia-smi", Command: cfg.NvidiaSmiBinary(), Description: "detect NVENC-capable GPUs", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired filters statuses down to unavailable non-optional tools.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
