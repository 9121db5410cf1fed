// Package rclone wraps the rclone CLI for remote library publishing: listing
// existing uploads, copying finished videos up, and minting share links.
package rclone
