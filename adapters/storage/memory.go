package storage

import (
	"context"
	"sync"

	"hospital-abc/internal/errors"
)

// MemoryStore is an in-memory storage backend
type MemoryStore struct {
	runs map[string]*StoredRun
	mu   sync.RWMutex
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*StoredRun),
	}
}

func (s *MemoryStore) Save(ctx context.Context, run *StoredRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*StoredRun
	for _, run := range s.runs {
		if filter.match(run) {
			cp := *run
			runs = append(runs, &cp)
		}
	}
	return filter.page(runs), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return errors.NotFound("run", id)
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, scenarioID string) (*StoredRun, error) {
	runs, err := s.List(ctx, &ListFilter{ScenarioID: scenarioID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("runs for scenario", scenarioID)
	}
	return runs[0], nil
}

func (s *MemoryStore) Close() error {
	return nil
}
