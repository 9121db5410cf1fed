// Package daemon coordinates the long-running Stagehand process.
//
// It ties configuration, the job registry, and the pipeline orchestrator into
// a single lifecycle with flock-based locking to prevent multiple instances.
// The lock and PID file live under the configured lock directory so the CLI
// status command can probe a running daemon without any IPC channel.
//
// Keep orchestration logic out of here: job phases live in their own packages
// and the poll loop lives in internal/pipeline. The daemon focuses on startup,
// shutdown, and single-instance enforcement.
package daemon
