package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the on-disk working directory of one job. Every phase reads
// and writes inside it; finalization moves deliverables out and removes it.
type Workspace struct {
	Root string
}

// JobWorkspace returns the workspace for a job id under the staging root.
func JobWorkspace(stagingDir, jobID string) Workspace {
	return Workspace{Root: filepath.Join(strings.TrimSpace(stagingDir), strings.TrimSpace(jobID))}
}

// SourceDir holds the downloaded or copied source media.
func (w Workspace) SourceDir() string { return filepath.Join(w.Root, "source") }

// StemsDir holds extraction WAVs and Demucs output.
func (w Workspace) StemsDir() string { return filepath.Join(w.Root, "stems") }

// LyricsDir holds transcription output and the corrections file.
func (w Workspace) LyricsDir() string { return filepath.Join(w.Root, "lyrics") }

// RenderDir holds the subtitle file and rendered preview/full videos.
func (w Workspace) RenderDir() string { return filepath.Join(w.Root, "render") }

// FinalDir holds the encoded deliverables before library placement.
func (w Workspace) FinalDir() string { return filepath.Join(w.Root, "final") }

// CorrectionsPath is the authoritative on-disk lyric corrections record.
// Render and finalize re-read it even when a caller supplies a payload.
func (w Workspace) CorrectionsPath() string {
	return filepath.Join(w.LyricsDir(), "corrections.json")
}

// StylesPath is the render styling configuration for this job.
func (w Workspace) StylesPath() string {
	return filepath.Join(w.RenderDir(), "styles.json")
}

// Ensure creates the workspace directory tree.
func (w Workspace) Ensure() error {
	for _, dir := range []string{w.SourceDir(), w.StemsDir(), w.LyricsDir(), w.RenderDir(), w.FinalDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the workspace root is present.
func (w Workspace) Exists() bool {
	info, err := os.Stat(w.Root)
	return err == nil && info.IsDir()
}

// Remove deletes the whole workspace.
func (w Workspace) Remove() error {
	if strings.TrimSpace(w.Root) == "" {
		return nil
	}
	return os.RemoveAll(w.Root)
}
