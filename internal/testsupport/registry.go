package testsupport

import (
	"context"
	"testing"

	"stagehand/internal/config"
	"stagehand/internal/jobs"
)

// MustOpenRegistry opens the configured job registry for tests and registers
// cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) jobs.Registry {
	t.Helper()

	reg, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = reg.Close()
	})
	return reg
}

// SeedJob creates and stores a queued job with the given title and artist.
func SeedJob(t testing.TB, reg jobs.Registry, title, artist string) *jobs.Job {
	t.Helper()

	job := jobs.NewJob(map[string]string{
		jobs.AttrTitle:  title,
		jobs.AttrArtist: artist,
	})
	if err := reg.Put(context.Background(), job); err != nil {
		t.Fatalf("registry.Put: %v", err)
	}
	return job
}
