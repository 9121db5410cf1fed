// Package encoding turns a rendered karaoke video and a chosen instrumental
// into the four deliverable files: a lossless MKV master, a lossless-audio
// MP4 for upload, a lossy MP4, and a 720p copy. NVENC is probed once per
// process; every non-remux artifact tries hardware first and falls back to
// libx264, and a software failure is fatal for the artifact.
package encoding
