package jobs

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRegistry keeps jobs in process memory. Intended for tests and the
// memory store backend; contents vanish on restart.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*Job)}
}

// Put inserts or fully replaces a job record.
func (m *MemoryRegistry) Put(_ context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is empty")
	}
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

// Get fetches a job by identifier.
func (m *MemoryRegistry) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, notFoundErr(id)
	}
	return job.Clone(), nil
}

// List returns jobs filtered by status, ordered by creation time.
func (m *MemoryRegistry) List(_ context.Context, statuses ...Status) ([]*Job, error) {
	wanted := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if len(wanted) > 0 {
			if _, ok := wanted[job.Status]; !ok {
				continue
			}
		}
		list = append(list, job.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// Delete removes a job, reporting whether it existed.
func (m *MemoryRegistry) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryRegistry) Close() error {
	return nil
}
