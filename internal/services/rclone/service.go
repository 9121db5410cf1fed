package rclone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Entry describes one object reported by rclone lsjson.
type Entry struct {
	Path     string    `json:"Path"`
	Name     string    `json:"Name"`
	Size     int64     `json:"Size"`
	MimeType string    `json:"MimeType"`
	ModTime  time.Time `json:"ModTime"`
	IsDir    bool      `json:"IsDir"`
}

// Service runs rclone against the configured remote.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
}

// NewService creates an rclone service for the given binary path.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "rclone"
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

// List returns the entries directly under remotePath. Missing directories on
// the remote surface as rclone errors; callers decide whether that matters.
func (s *Service) List(ctx context.Context, remotePath string) ([]Entry, error) {
	if strings.TrimSpace(remotePath) == "" {
		return nil, fmt.Errorf("list: remote path required")
	}
	output, err := s.run(ctx, s.binary, "lsjson", remotePath)
	if err != nil {
		return nil, fmt.Errorf("rclone lsjson: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		return nil, fmt.Errorf("rclone lsjson: parse: %w", err)
	}
	return entries, nil
}

// CopyTo uploads a local file to the exact remote path, creating parent
// directories as needed.
func (s *Service) CopyTo(ctx context.Context, localPath, remotePath string) error {
	if strings.TrimSpace(localPath) == "" {
		return fmt.Errorf("copyto: local path required")
	}
	if strings.TrimSpace(remotePath) == "" {
		return fmt.Errorf("copyto: remote path required")
	}
	if _, err := s.run(ctx, s.binary, "copyto", localPath, remotePath); err != nil {
		return fmt.Errorf("rclone copyto: %w", err)
	}
	return nil
}

// Link returns a public share URL for the remote path.
func (s *Service) Link(ctx context.Context, remotePath string) (string, error) {
	if strings.TrimSpace(remotePath) == "" {
		return "", fmt.Errorf("link: remote path required")
	}
	output, err := s.run(ctx, s.binary, "link", remotePath)
	if err != nil {
		return "", fmt.Errorf("rclone link: %w", err)
	}
	link := strings.TrimSpace(output)
	if link == "" {
		return "", fmt.Errorf("rclone link: empty response for %s", remotePath)
	}
	return link, nil
}
