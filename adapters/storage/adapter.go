// Package storage persists allocation runs.
// Supports multiple backends: memory, JSON files, SQLite.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"hospital-abc/core/aggregate"
	"hospital-abc/core/determinism"
	"hospital-abc/core/diff"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Store is the storage interface
type Store interface {
	// Save stores a run, replacing any run with the same id
	Save(ctx context.Context, run *StoredRun) error

	// Get retrieves a run by id
	Get(ctx context.Context, id string) (*StoredRun, error)

	// List lists runs newest first
	List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error)

	// Delete removes a run
	Delete(ctx context.Context, id string) error

	// GetLatest gets the latest run of a scenario
	GetLatest(ctx context.Context, scenarioID string) (*StoredRun, error)

	// Close closes the store
	Close() error
}

// StoredRun is a persisted run with its headline figures denormalized
type StoredRun struct {
	// ID is the run id
	ID string `json:"id"`

	// ScenarioID groups runs of the same scenario
	ScenarioID string `json:"scenario_id,omitempty"`

	// Outcome classifies the run
	Outcome types.RunOutcome `json:"outcome"`

	// TotalAllocated is the sum of all result amounts
	TotalAllocated decimal.Decimal `json:"total_allocated"`

	// TotalCost is the cost landed on cost objects
	TotalCost decimal.Decimal `json:"total_cost"`

	// TotalRevenue is the revenue landed on cost objects
	TotalRevenue decimal.Decimal `json:"total_revenue"`

	// ResultCount is the number of allocation results
	ResultCount int `json:"result_count"`

	// Fingerprint is the content hash of the results
	Fingerprint string `json:"fingerprint"`

	// CreatedAt is when the run started
	CreatedAt time.Time `json:"created_at"`

	// Metadata holds free-form labels (source file, user)
	Metadata map[string]string `json:"metadata,omitempty"`

	// State is the full run record
	State *types.ExecutionState `json:"state"`
}

// NewStoredRun wraps a finished run for storage
func NewStoredRun(state *types.ExecutionState, metadata map[string]string) *StoredRun {
	totals := aggregate.Total(aggregate.FromState(state))
	return &StoredRun{
		ID:             state.RunID,
		ScenarioID:     state.ScenarioID,
		Outcome:        state.Outcome(),
		TotalAllocated: state.TotalAllocated,
		TotalCost:      totals.Cost,
		TotalRevenue:   totals.Revenue,
		ResultCount:    len(state.Results),
		Fingerprint:    determinism.Fingerprint(state.Results).Hex(),
		CreatedAt:      state.StartTime,
		Metadata:       metadata,
		State:          state,
	}
}

// ListFilter filters run listing
type ListFilter struct {
	ScenarioID string
	Outcome    types.RunOutcome
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

func (f *ListFilter) match(run *StoredRun) bool {
	if f == nil {
		return true
	}
	if f.ScenarioID != "" && run.ScenarioID != f.ScenarioID {
		return false
	}
	if f.Outcome != "" && run.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && run.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && run.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// page sorts newest first and applies limit/offset
func (f *ListFilter) page(runs []*StoredRun) []*StoredRun {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if f == nil {
		return runs
	}
	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return nil
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(runs) {
		runs = runs[:f.Limit]
	}
	return runs
}

func prepare(run *StoredRun) error {
	if run == nil || run.ID == "" {
		return errors.New(errors.TypeValidation, "run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	return nil
}

// CompareResult is a comparison between two stored runs
type CompareResult struct {
	OldID              string `json:"old_id"`
	NewID              string `json:"new_id"`
	FingerprintChanged bool   `json:"fingerprint_changed"`
	*diff.DiffResult
}

// Compare compares two stored runs of any backend
func Compare(ctx context.Context, s Store, oldID, newID string) (*CompareResult, error) {
	oldRun, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newRun, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}

	return &CompareResult{
		OldID:              oldID,
		NewID:              newID,
		FingerprintChanged: oldRun.Fingerprint != newRun.Fingerprint,
		DiffResult:         diff.NewDiffer(decimal.Zero).Diff(oldRun.State, newRun.State),
	}, nil
}

// StoreFactory creates stores by backend type
func StoreFactory(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendFile:
		if path == "" {
			path = ".hospital-abc/runs"
		}
		return NewFileStore(path)
	case BackendSQLite:
		if path == "" {
			path = ".hospital-abc/runs.db"
		}
		return OpenSQLite(path)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported storage backend: %s", backend)
	}
}
