// Package demucs wraps the Demucs CLI for two-stem separation, producing the
// vocal and instrumental tracks the karaoke pipeline builds everything from.
package demucs
