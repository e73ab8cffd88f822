package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists runs in a SQLite database
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite run store and applies the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(errors.TypeConfig, "storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Storage("create storage directory", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Storage("open sqlite db", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Storage("ping sqlite db", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Storage("apply schema", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts one run
func (s *SQLiteStore) Save(ctx context.Context, run *StoredRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(run); err != nil {
		return err
	}

	state, err := json.Marshal(run.State)
	if err != nil {
		return errors.Storage("marshal run state", err)
	}
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return errors.Storage("marshal run metadata", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO runs (
		   id, scenario_id, outcome, total_allocated, total_cost, total_revenue,
		   result_count, fingerprint, created_at, metadata, state
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   scenario_id = excluded.scenario_id,
		   outcome = excluded.outcome,
		   total_allocated = excluded.total_allocated,
		   total_cost = excluded.total_cost,
		   total_revenue = excluded.total_revenue,
		   result_count = excluded.result_count,
		   fingerprint = excluded.fingerprint,
		   created_at = excluded.created_at,
		   metadata = excluded.metadata,
		   state = excluded.state`,
		run.ID,
		run.ScenarioID,
		string(run.Outcome),
		run.TotalAllocated.String(),
		run.TotalCost.String(),
		run.TotalRevenue.String(),
		run.ResultCount,
		run.Fingerprint,
		toMillis(run.CreatedAt),
		string(metadata),
		state,
	)
	if err != nil {
		return errors.Storage("save run "+run.ID, err)
	}
	return nil
}

const selectRun = `SELECT id, scenario_id, outcome, total_allocated, total_cost, total_revenue,
       result_count, fingerprint, created_at, metadata, state
  FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*StoredRun, error) {
	var (
		run                      StoredRun
		outcome                  string
		allocated, cost, revenue string
		createdAt                int64
		metadata                 string
		state                    []byte
	)
	if err := row.Scan(&run.ID, &run.ScenarioID, &outcome, &allocated, &cost, &revenue,
		&run.ResultCount, &run.Fingerprint, &createdAt, &metadata, &state); err != nil {
		return nil, err
	}

	run.Outcome = types.RunOutcome(outcome)
	run.CreatedAt = fromMillis(createdAt)
	var err error
	if run.TotalAllocated, err = decimal.NewFromString(allocated); err != nil {
		return nil, fmt.Errorf("decode total_allocated: %w", err)
	}
	if run.TotalCost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("decode total_cost: %w", err)
	}
	if run.TotalRevenue, err = decimal.NewFromString(revenue); err != nil {
		return nil, fmt.Errorf("decode total_revenue: %w", err)
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &run.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	run.State = &types.ExecutionState{}
	if err := json.Unmarshal(state, run.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &run, nil
}

// Get returns one run by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run, err := scanRun(s.sqlDB.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, errors.Storage("get run "+id, err)
	}
	return run, nil
}

// List returns runs newest first
func (s *SQLiteStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter != nil {
		if filter.ScenarioID != "" {
			where = append(where, "scenario_id = ?")
			args = append(args, filter.ScenarioID)
		}
		if filter.Outcome != "" {
			where = append(where, "outcome = ?")
			args = append(args, string(filter.Outcome))
		}
		if !filter.Since.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, toMillis(filter.Since))
		}
		if !filter.Until.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, toMillis(filter.Until))
		}
	}

	query := selectRun
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Storage("list runs", err)
	}
	defer rows.Close()

	var runs []*StoredRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Storage("scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("iterate runs", err)
	}
	return runs, nil
}

// Delete removes one run
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errors.Storage("delete run "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Storage("delete run "+id, err)
	}
	if n == 0 {
		return errors.NotFound("run", id)
	}
	return nil
}

// GetLatest returns the newest run of a scenario
func (s *SQLiteStore) GetLatest(ctx context.Context, scenarioID string) (*StoredRun, error) {
	runs, err := s.List(ctx, &ListFilter{ScenarioID: scenarioID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("runs for scenario", scenarioID)
	}
	return runs[0], nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
