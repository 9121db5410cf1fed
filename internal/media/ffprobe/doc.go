// Package ffprobe shells out to ffprobe and exposes the stream and container
// metadata the pipeline cares about: whether a source is audio-only, its
// resolution, duration, and sample rate.
package ffprobe
