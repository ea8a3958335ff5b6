package workload

import (
	"context"
	"sort"
	"sync"
)

// Store persists jobs.
type Store interface {
	// Put inserts or replaces the job.
	Put(ctx context.Context, job Job) error

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Job, error)

	// List returns every job, newest first.
	List(ctx context.Context) ([]Job, error)
}

// MemoryStore is a Store keeping jobs in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Put(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.clone(), nil
}

func (s *MemoryStore) List(context.Context) ([]Job, error) {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.clone())
	}
	s.mu.RUnlock()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs, nil
}
