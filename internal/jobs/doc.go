// Package jobs persists pipeline jobs and exposes helpers for driving their
// lifecycle.
//
// The Registry interface abstracts three backends: SQLite (the default),
// Redis, and an in-memory map for tests. All backends share whole-record
// replacement semantics; Put stores the entire job, and concurrent attribute
// writers accept last-write-wins. Only the pipeline orchestrator changes
// status and timeline fields.
//
// A job's timeline is an append-only list of phase records. Each status
// change closes the open record and opens a new one, so the timeline always
// carries at most one open record and it matches the job's current status.
//
// Schema changes bump schemaVersion in sqlite.go; users delete the database
// to adopt the new schema.
package jobs
