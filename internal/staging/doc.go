// Package staging owns the per-job working directory layout and the sweeps
// that reclaim disk from stale or orphaned workspaces.
package staging
