package lyrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stagehand/internal/services/whisperx"
)

// Word is one timed word of a lyric line.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Line is one display line of the karaoke sheet.
type Line struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Corrections is the on-disk lyric record. Transcription writes the machine
// draft; reviewers edit the file in place; render treats the file as the
// authoritative input and never the draft in memory.
type Corrections struct {
	Language string `json:"language,omitempty"`
	Lines    []Line `json:"lines"`
}

// FromSegments converts WhisperX output into a corrections draft. Empty
// segments are dropped; line bounds fall back to word timings when the
// segment carries none.
func FromSegments(segments []whisperx.Segment, language string) Corrections {
	corrections := Corrections{Language: strings.TrimSpace(language)}
	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		line := Line{
			Start: segment.Start,
			End:   segment.End,
			Text:  text,
		}
		for _, word := range segment.Words {
			wordText := strings.TrimSpace(word.Word)
			if wordText == "" {
				continue
			}
			line.Words = append(line.Words, Word{
				Text:  wordText,
				Start: word.Start,
				End:   word.End,
			})
		}
		if len(line.Words) > 0 {
			if line.Start <= 0 {
				line.Start = line.Words[0].Start
			}
			if line.End <= 0 {
				line.End = line.Words[len(line.Words)-1].End
			}
		}
		corrections.Lines = append(corrections.Lines, line)
	}
	return corrections
}

// Load reads and validates a corrections file.
func Load(path string) (Corrections, error) {
	var corrections Corrections
	data, err := os.ReadFile(path)
	if err != nil {
		return corrections, fmt.Errorf("read corrections: %w", err)
	}
	if err := json.Unmarshal(data, &corrections); err != nil {
		return corrections, fmt.Errorf("parse corrections %s: %w", filepath.Base(path), err)
	}
	if err := corrections.Validate(); err != nil {
		return corrections, fmt.Errorf("corrections %s: %w", filepath.Base(path), err)
	}
	return corrections, nil
}

// Save writes the corrections file with stable indentation so reviewers can
// edit it by hand.
func Save(path string, corrections Corrections) error {
	data, err := json.MarshalIndent(corrections, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corrections: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare corrections dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write corrections: %w", err)
	}
	return nil
}

// Validate checks the structural rules a render depends on: at least one
// line, non-negative times, ends after starts, and lines in chronological
// order.
func (c Corrections) Validate() error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("no lyric lines")
	}
	for i, line := range c.Lines {
		if strings.TrimSpace(line.Text) == "" {
			return fmt.Errorf("line %d has no text", i+1)
		}
		if line.Start < 0 {
			return fmt.Errorf("line %d starts before zero", i+1)
		}
		if line.End < line.Start {
			return fmt.Errorf("line %d ends before it starts", i+1)
		}
		if i > 0 && line.Start < c.Lines[i-1].Start {
			return fmt.Errorf("line %d starts before line %d", i+1, i)
		}
		for j, word := range line.Words {
			if word.End < word.Start {
				return fmt.Errorf("line %d word %d ends before it starts", i+1, j+1)
			}
		}
	}
	return nil
}

// Duration returns the end time of the last line.
func (c Corrections) Duration() float64 {
	if len(c.Lines) == 0 {
		return 0
	}
	return c.Lines[len(c.Lines)-1].End
}

// Text flattens the lines into plain text, one line per lyric line.
func (c Corrections) Text() string {
	parts := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		parts = append(parts, line.Text)
	}
	return strings.Join(parts, "\n")
}
