package lyrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stagehand/internal/services/whisperx"
)

func sampleSegments() []whisperx.Segment {
	return []whisperx.Segment{
		{
			Text:  " Hello world ",
			Start: 1.0,
			End:   2.5,
			Words: []whisperx.Word{
				{Word: "Hello", Start: 1.0, End: 1.6},
				{Word: "world", Start: 1.8, End: 2.5},
			},
		},
		{Text: "   ", Start: 3.0, End: 3.5},
		{
			Text:  "Second line",
			Start: 4.0,
			End:   6.0,
		},
	}
}

func TestFromSegmentsBuildsDraft(t *testing.T) {
	corrections := FromSegments(sampleSegments(), "en")
	if corrections.Language != "en" {
		t.Fatalf("expected language en, got %q", corrections.Language)
	}
	if len(corrections.Lines) != 2 {
		t.Fatalf("expected blank segment dropped, got %d lines", len(corrections.Lines))
	}
	first := corrections.Lines[0]
	if first.Text != "Hello world" {
		t.Fatalf("expected trimmed text, got %q", first.Text)
	}
	if len(first.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(first.Words))
	}
	if first.Words[1].Text != "world" {
		t.Fatalf("unexpected word %q", first.Words[1].Text)
	}
	if err := corrections.Validate(); err != nil {
		t.Fatalf("draft should validate: %v", err)
	}
}

func TestFromSegmentsDerivesBoundsFromWords(t *testing.T) {
	segments := []whisperx.Segment{{
		Text: "No bounds",
		Words: []whisperx.Word{
			{Word: "No", Start: 5.0, End: 5.3},
			{Word: "bounds", Start: 5.4, End: 6.0},
		},
	}}
	corrections := FromSegments(segments, "")
	if len(corrections.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(corrections.Lines))
	}
	line := corrections.Lines[0]
	if line.Start != 5.0 || line.End != 6.0 {
		t.Fatalf("expected bounds from words, got %f-%f", line.Start, line.End)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lyrics", "corrections.json")
	original := FromSegments(sampleSegments(), "en")

	if err := Save(path, original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Lines) != len(original.Lines) {
		t.Fatalf("line count changed across round trip: %d vs %d", len(loaded.Lines), len(original.Lines))
	}
	if loaded.Lines[0].Text != original.Lines[0].Text {
		t.Fatalf("text changed across round trip: %q", loaded.Lines[0].Text)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed corrections")
	}
}

func TestValidateCatchesBrokenTimings(t *testing.T) {
	tests := []struct {
		name        string
		corrections Corrections
	}{
		{name: "empty", corrections: Corrections{}},
		{
			name: "blank line",
			corrections: Corrections{Lines: []Line{
				{Start: 1, End: 2, Text: "  "},
			}},
		},
		{
			name: "end before start",
			corrections: Corrections{Lines: []Line{
				{Start: 5, End: 4, Text: "backwards"},
			}},
		},
		{
			name: "out of order",
			corrections: Corrections{Lines: []Line{
				{Start: 10, End: 11, Text: "late"},
				{Start: 2, End: 3, Text: "early"},
			}},
		},
		{
			name: "word end before start",
			corrections: Corrections{Lines: []Line{
				{Start: 1, End: 3, Text: "bad word", Words: []Word{
					{Text: "bad", Start: 2, End: 1},
				}},
			}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.corrections.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTextFlattensLines(t *testing.T) {
	corrections := Corrections{Lines: []Line{
		{Start: 1, End: 2, Text: "first"},
		{Start: 3, End: 4, Text: "second"},
	}}
	if got := corrections.Text(); got != "first\nsecond" {
		t.Fatalf("unexpected flattened text %q", got)
	}
	if corrections.Duration() != 4 {
		t.Fatalf("unexpected duration %f", corrections.Duration())
	}
}

func TestTextAndDurationEmpty(t *testing.T) {
	var corrections Corrections
	if corrections.Text() != "" {
		t.Fatalf("expected empty text")
	}
	if corrections.Duration() != 0 {
		t.Fatalf("expected zero duration")
	}
	if !strings.Contains(Corrections{}.Validate().Error(), "no lyric lines") {
		t.Fatalf("unexpected validation message")
	}
}
