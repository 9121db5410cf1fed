// Package whisperx wraps the WhisperX CLI for lyric transcription. Runs
// produce word-level timings as JSON alongside SRT output; the render stage
// builds karaoke subtitles from those timings.
package whisperx
