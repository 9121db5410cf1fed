package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Service downloads source media with yt-dlp.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
}

// NewService creates a yt-dlp service for the given binary path.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing). The runner
// returns the command's stdout.
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, name string, args ...string) (string, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}

// Download fetches the best audio+video rendition of url into destDir and
// returns the path of the downloaded file.
func (s *Service) Download(ctx context.Context, url, destDir string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("download: url required")
	}
	if strings.TrimSpace(destDir) == "" {
		return "", fmt.Errorf("download: dest dir required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("download: ensure dest dir: %w", err)
	}

	output, err := s.run(ctx, s.binary, buildArgs(url, destDir)...)
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	path := lastLine(output)
	if path == "" {
		return "", fmt.Errorf("yt-dlp: no output path reported for %s", url)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("yt-dlp: reported file missing: %s: %w", path, err)
	}
	return path, nil
}

// buildArgs constructs the yt-dlp command arguments. after_move:filepath
// prints the final on-disk location once post-processing completes.
func buildArgs(url, destDir string) []string {
	return []string{
		"--no-playlist",
		"--no-progress",
		"--restrict-filenames",
		"-f", "bv*+ba/b",
		"-o", filepath.Join(destDir, "%(title)s.%(ext)s"),
		"--no-simulate",
		"--print", "after_move:filepath",
		url,
	}
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
