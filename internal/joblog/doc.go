// Package joblog maintains an append-only log per job, separate from the
// daemon's structured log. The pipeline appends one line per significant
// event; the CLI reads the tail back for "jobs logs".
package joblog
