package jobs

import (
	"context"
	"fmt"

	"stagehand/internal/config"
	"stagehand/internal/services"
)

// Registry persists jobs for the pipeline, the daemon poll loop, and the CLI.
// Put replaces the whole stored record; concurrent attribute writers must
// fetch, mutate, and Put, accepting last-write-wins semantics.
type Registry interface {
	// Put inserts or fully replaces a job record.
	Put(ctx context.Context, job *Job) error
	// Get fetches a job by ID. Absent jobs yield an error matching
	// services.ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs filtered by status (all jobs when no status is
	// given), ordered by creation time.
	List(ctx context.Context, statuses ...Status) ([]*Job, error)
	// Delete removes a job, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Close releases backend resources.
	Close() error
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total          int
	Queued         int
	Working        int
	AwaitingReview int
	ReadyToFinal   int
	Errored        int
	Complete       int
}

// Open constructs the registry backend selected by configuration.
func Open(cfg *config.Config) (Registry, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return OpenSQLite(cfg)
	case "redis":
		return OpenRedis(cfg)
	case "memory":
		return NewMemoryRegistry(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open",
			fmt.Sprintf("unknown store backend %q", cfg.Store.Backend), nil)
	}
}

// Summarize folds a job list into health counts for status output.
func Summarize(list []*Job) HealthSummary {
	health := HealthSummary{Total: len(list)}
	for _, job := range list {
		switch {
		case job.Status == StatusQueued:
			health.Queued++
		case job.Status == StatusAwaitingReview:
			health.AwaitingReview++
		case job.Status == StatusReadyForFinalization:
			health.ReadyToFinal++
		case job.Status == StatusError:
			health.Errored++
		case job.Status == StatusComplete:
			health.Complete++
		case job.Status.IsWorking():
			health.Working++
		}
	}
	return health
}

func notFoundErr(id string) error {
	return services.Wrap(services.ErrNotFound, "registry", "get", fmt.Sprintf("job %s", id), nil)
}
