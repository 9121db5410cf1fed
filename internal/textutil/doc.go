// Package textutil provides text processing utilities for filename
// sanitization and display-title normalization.
//
// The primary use cases are:
//   - Sanitizing filenames and path segments for safe filesystem use
//   - Deriving human-readable titles from raw track names and file paths
package textutil
