package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/jobs"
)

// sourceFileExtensions lists the local media types accepted by add. URLs skip
// this check; yt-dlp decides what it can fetch.
var sourceFileExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".flac": {},
	".m4a":  {},
	".ogg":  {},
	".opus": {},
	".mkv":  {},
	".mp4":  {},
	".webm": {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var artist string
	var title string
	var instrumental string
	var noLyrics bool

	cmd := &cobra.Command{
		Use:   "add <url-or-file>",
		Short: "Queue a karaoke production job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := make(map[string]string)

			source := strings.TrimSpace(args[0])
			if isSourceURL(source) {
				attrs[jobs.AttrSourceURL] = source
			} else {
				absPath, err := resolveSourceFile(source)
				if err != nil {
					return err
				}
				attrs[jobs.AttrSourcePath] = absPath
			}

			if value := strings.TrimSpace(artist); value != "" {
				attrs[jobs.AttrArtist] = value
			}
			if value := strings.TrimSpace(title); value != "" {
				attrs[jobs.AttrTitle] = value
			}
			if value := strings.TrimSpace(instrumental); value != "" {
				absPath, err := resolveSourceFile(value)
				if err != nil {
					return fmt.Errorf("instrumental: %w", err)
				}
				attrs[jobs.AttrInstrumentalProvided] = "true"
				attrs[jobs.AttrInstrumentalPath] = absPath
			}
			if noLyrics {
				attrs[jobs.AttrLyricsDisabled] = "true"
			}

			return ctx.withRegistry(func(registry jobs.Registry) error {
				job := jobs.NewJob(attrs)
				if err := registry.Put(cmd.Context(), job); err != nil {
					return err
				}
				_ = jobLogStore(ctx.configValue()).Append(job.ID, fmt.Sprintf("Job queued: %s", source))
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", shortID(job.ID), job.DisplayName())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&artist, "artist", "", "Artist recorded on the job")
	cmd.Flags().StringVar(&title, "title", "", "Track title recorded on the job")
	cmd.Flags().StringVar(&instrumental, "instrumental", "", "Pre-made instrumental file (skips stem separation)")
	cmd.Flags().BoolVar(&noLyrics, "no-lyrics", false, "Skip transcription; the video renders without subtitles")
	return cmd
}

func isSourceURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

func resolveSourceFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file does not exist: %s", absPath)
		}
		return "", fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}

	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := sourceFileExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return absPath, nil
}
