// Package lyrics defines the corrections file reviewers edit between
// transcription and render, and turns it into ASS karaoke subtitles.
package lyrics
