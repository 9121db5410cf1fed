package lyrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
)

// Styles controls the look of the burned-in karaoke subtitles. Colours use
// the ASS &HAABBGGRR form.
type Styles struct {
	FontName        string `json:"font_name"`
	FontSize        int    `json:"font_size"`
	PrimaryColour   string `json:"primary_colour"`
	SecondaryColour string `json:"secondary_colour"`
	OutlineColour   string `json:"outline_colour"`
	Outline         int    `json:"outline"`
	MarginV         int    `json:"margin_v"`
	PlayResX        int    `json:"play_res_x"`
	PlayResY        int    `json:"play_res_y"`
}

// DefaultStyles returns the built-in karaoke look: white text that fills
// yellow as each word is sung.
func DefaultStyles() Styles {
	return Styles{
		FontName:        "Arial",
		FontSize:        64,
		PrimaryColour:   "&H00FFFFFF",
		SecondaryColour: "&H0000FFFF",
		OutlineColour:   "&H00000000",
		Outline:         3,
		MarginV:         80,
		PlayResX:        1920,
		PlayResY:        1080,
	}
}

// LoadStyles reads a styles file, filling unset fields from the defaults. A
// missing file yields the defaults without error so jobs render out of the
// box.
func LoadStyles(path string) (Styles, error) {
	styles := DefaultStyles()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return styles, nil
		}
		return styles, fmt.Errorf("read styles: %w", err)
	}
	if err := json.Unmarshal(data, &styles); err != nil {
		return styles, fmt.Errorf("parse styles: %w", err)
	}
	return styles.withDefaults(), nil
}

// SaveStyles writes a styles file reviewers can tweak per job.
func SaveStyles(path string, styles Styles) error {
	data, err := json.MarshalIndent(styles.withDefaults(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode styles: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write styles: %w", err)
	}
	return nil
}

func (s Styles) withDefaults() Styles {
	defaults := DefaultStyles()
	if strings.TrimSpace(s.FontName) == "" {
		s.FontName = defaults.FontName
	}
	if s.FontSize <= 0 {
		s.FontSize = defaults.FontSize
	}
	if strings.TrimSpace(s.PrimaryColour) == "" {
		s.PrimaryColour = defaults.PrimaryColour
	}
	if strings.TrimSpace(s.SecondaryColour) == "" {
		s.SecondaryColour = defaults.SecondaryColour
	}
	if strings.TrimSpace(s.OutlineColour) == "" {
		s.OutlineColour = defaults.OutlineColour
	}
	if s.Outline <= 0 {
		s.Outline = defaults.Outline
	}
	if s.MarginV <= 0 {
		s.MarginV = defaults.MarginV
	}
	if s.PlayResX <= 0 {
		s.PlayResX = defaults.PlayResX
	}
	if s.PlayResY <= 0 {
		s.PlayResY = defaults.PlayResY
	}
	return s
}

// BuildASS renders the corrections as an ASS subtitle script with per-word
// \k karaoke timing. Lines without word timing highlight the whole line over
// its duration.
func BuildASS(corrections Corrections, styles Styles) string {
	styles = styles.withDefaults()
	var b strings.Builder

	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", styles.PlayResX)
	fmt.Fprintf(&b, "PlayResY: %d\n", styles.PlayResY)
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("\n")

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Karaoke,%s,%d,%s,%s,%s,&H64000000,0,0,0,0,100,100,0,0,1,%d,0,2,60,60,%d,1\n",
		styles.FontName, styles.FontSize,
		styles.PrimaryColour, styles.SecondaryColour, styles.OutlineColour,
		styles.Outline, styles.MarginV)
	b.WriteString("\n")

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, Effect, Text\n")
	for _, line := range corrections.Lines {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Karaoke,,0,0,0,%s\n",
			formatASSTime(line.Start), formatASSTime(line.End), karaokeText(line))
	}
	return b.String()
}

// karaokeText assembles the \k-tagged payload for one line. Gaps between
// words become silent \k segments so the highlight stays in sync.
func karaokeText(line Line) string {
	if len(line.Words) == 0 {
		return fmt.Sprintf("{\\k%d}%s", centiseconds(line.End-line.Start), escapeASS(line.Text))
	}
	var b strings.Builder
	cursor := line.Start
	for i, word := range line.Words {
		if gap := centiseconds(word.Start - cursor); gap > 0 {
			fmt.Fprintf(&b, "{\\k%d}", gap)
		}
		duration := centiseconds(word.End - word.Start)
		if duration <= 0 {
			duration = 1
		}
		fmt.Fprintf(&b, "{\\k%d}%s", duration, escapeASS(word.Text))
		if i < len(line.Words)-1 {
			b.WriteString(" ")
		}
		cursor = word.End
	}
	return b.String()
}

// centiseconds converts seconds to the centisecond units \k expects.
func centiseconds(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int(math.Round(seconds * 100))
}

// formatASSTime renders seconds as H:MM:SS.CC.
func formatASSTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	centis := int(math.Round((seconds - float64(total)) * 100))
	if centis >= 100 {
		total++
		centis -= 100
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
}

var assEscaper = strings.NewReplacer(
	"{", "(",
	"}", ")",
	"\n", " ",
)

// escapeASS keeps reviewer-entered text from being parsed as override tags.
func escapeASS(text string) string {
	return assEscaper.Replace(strings.TrimSpace(text))
}
