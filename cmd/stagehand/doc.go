// Package main hosts the Stagehand CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into job
// registry operations, pipeline requests, log inspection, and configuration
// scaffolding. The same binary runs the daemon via "stagehand daemon run"; the
// other commands talk to the shared registry directly, so they work whether or
// not a daemon is up, and phase requests become marker attributes the daemon
// poll loop claims.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
