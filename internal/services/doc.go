// Package services defines shared utilities consumed by the pipeline phase
// handlers and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across phases.
//
// Use these helpers when wiring new phase logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
