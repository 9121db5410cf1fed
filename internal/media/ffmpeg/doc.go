// Package ffmpeg runs the ffmpeg binary for audio extraction and encoding.
// The command runner is injectable so tests can assert on the exact argv
// without executing anything.
package ffmpeg
