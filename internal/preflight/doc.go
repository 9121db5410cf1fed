// Package preflight provides readiness checks for the external tools
// and filesystem paths that Stagehand depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup. If a required check fails,
//     startup aborts instead of letting jobs fail hours into a run.
//   - The CLI "stagehand status" command uses individual check functions
//     (CheckTools, CheckDirectoryAccess) to display readiness.
//
// Service checks are gated by config -- notification checks are skipped
// when no ntfy topic is set, and optional tools never block startup.
package preflight
