package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayTitle normalizes a raw name into a human-readable title: separator
// characters become spaces, runs collapse, and each word is title-cased.
// Returns "Unknown" for input with no usable characters.
func DisplayTitle(raw string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(title)
}

// TitleFromPath derives a display title from a file path by stripping the
// directory and extension before normalizing.
func TitleFromPath(sourcePath string) string {
	if sourcePath == "" {
		return "Unknown"
	}
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return DisplayTitle(base)
}
