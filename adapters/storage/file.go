package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hospital-abc/internal/errors"
)

// FileStore keeps one JSON document per run in a directory
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a file store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Storage("failed to create storage directory", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", errors.Newf(errors.TypeValidation, "invalid run id %q", id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, run *StoredRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(run); err != nil {
		return err
	}
	path, err := s.path(run.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Storage("failed to marshal run", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Storage("failed to write run", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Storage("failed to write run", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readRun(path, id)
}

func readRun(path, id string) (*StoredRun, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, errors.Storage("failed to read run", err)
	}

	var run StoredRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.Storage(fmt.Sprintf("failed to unmarshal run %s", id), err)
	}
	return &run, nil
}

func (s *FileStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Storage("failed to read storage", err)
	}

	var runs []*StoredRun
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		run, err := readRun(filepath.Join(s.basePath, entry.Name()), id)
		if err != nil {
			return nil, err
		}
		if filter.match(run) {
			runs = append(runs, run)
		}
	}
	return filter.page(runs), nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("run", id)
		}
		return errors.Storage("failed to delete run", err)
	}
	return nil
}

func (s *FileStore) GetLatest(ctx context.Context, scenarioID string) (*StoredRun, error) {
	runs, err := s.List(ctx, &ListFilter{ScenarioID: scenarioID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("runs for scenario", scenarioID)
	}
	return runs[0], nil
}

func (s *FileStore) Close() error {
	return nil
}
