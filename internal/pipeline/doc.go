// Package pipeline drives jobs through the production lifecycle.
//
// The Orchestrator owns every status change: Transition closes the open
// timeline record, opens the next one, merges attribute updates, and persists
// the whole job back to the registry. Phase runners (produce, render,
// finalize) never touch status or timeline themselves; they return attribute
// updates and the orchestrator records the outcome.
//
// Phase scheduling is asynchronous. StartProduce, StartRender, and
// StartFinalize validate the job's current status, perform the entry
// transition synchronously, then run the phase body in a goroutine tracked by
// the orchestrator's wait group. The daemon poll loop claims queued jobs
// automatically; review and finalization are operator-triggered through
// RequestReview and RequestFinalize, which set marker attributes the poll
// loop acts on.
//
// Stop cancels the run context and waits for the loop and all in-flight
// phases. A job interrupted mid-phase keeps its working status; the next
// Start returns it to its phase entry point, and idempotent phase bodies skip
// the work that already finished.
package pipeline
