// Package archive assigns brand codes and delivers finished artifacts into
// the library, optionally publishing them to an rclone remote.
package archive
