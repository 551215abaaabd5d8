// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crateloft/cratesync/internal/history"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool used for run history.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// HistoryStore implements history.RunRepository on Postgres. Runs live in the
// configured table and per-release outcomes in a sibling table with the
// "_items" suffix.
type HistoryStore struct {
	pool  pgxPool
	runs  string
	items string
}

// NewHistoryStore creates a Postgres-backed HistoryStore using the provided config.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "sync_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HistoryStore{
		pool:  pool,
		runs:  table,
		items: table + "_items",
	}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool pgxPool, table string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "sync_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: pool, runs: table, items: table + "_items"}, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// BeginRun inserts the run as running; repeating the same id is a no-op.
func (s *HistoryStore) BeginRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, started_at, status, total, completed, errors)
VALUES ($1, $2, $3, $4, 0, 0)
ON CONFLICT (id) DO NOTHING`, s.runs)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, history.RunRunning, total); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal with final counters and an optional note.
func (s *HistoryStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status history.RunStatus,
	completed, failed int,
	note *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, completed = $3, errors = $4, note = $5
WHERE id = $6`, s.runs)
	res, err := s.pool.Exec(ctx, query, finishedAt, status, completed, failed, note, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

// RecordOutcome upserts one release outcome keyed by (run, seq), so replayed
// events simply overwrite the earlier row.
func (s *HistoryStore) RecordOutcome(ctx context.Context, out history.ItemOutcome) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, seq, release_id, title, status, note, runtime_ms, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, seq) DO UPDATE
SET status = EXCLUDED.status,
	note = EXCLUDED.note,
	runtime_ms = EXCLUDED.runtime_ms,
	finished_at = EXCLUDED.finished_at`, s.items)
	_, err := s.pool.Exec(
		ctx,
		query,
		out.RunID,
		out.Seq,
		out.ReleaseID,
		out.Title,
		out.Status,
		out.Note,
		out.Runtime.Milliseconds(),
		out.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *HistoryStore) GetRun(ctx context.Context, runID uuid.UUID) (history.Run, error) {
	query := fmt.Sprintf(`
SELECT id, started_at, finished_at, status, total, completed, errors, note
FROM %s
WHERE id = $1`, s.runs)
	var run history.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Total,
		&run.Completed,
		&run.Errors,
		&run.Note,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return history.Run{}, history.ErrNotFound
		}
		return history.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *HistoryStore) ListRuns(
	ctx context.Context,
	status *history.RunStatus,
	limit, offset int,
) ([]history.Run, error) {
	query := fmt.Sprintf(`
SELECT id, started_at, finished_at, status, total, completed, errors, note
FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, s.runs)
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []history.Run
	for rows.Next() {
		var run history.Run
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Total,
			&run.Completed,
			&run.Errors,
			&run.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListOutcomes retrieves the recorded outcomes for one run ordered by seq.
func (s *HistoryStore) ListOutcomes(
	ctx context.Context,
	runID uuid.UUID,
	limit, offset int,
) ([]history.ItemOutcome, error) {
	query := fmt.Sprintf(`
SELECT run_id, seq, release_id, title, status, note, runtime_ms, finished_at
FROM %s
WHERE run_id = $1
ORDER BY seq
LIMIT $2 OFFSET $3`, s.items)
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outs []history.ItemOutcome
	for rows.Next() {
		var (
			out       history.ItemOutcome
			runtimeMS int64
		)
		err := rows.Scan(
			&out.RunID,
			&out.Seq,
			&out.ReleaseID,
			&out.Title,
			&out.Status,
			&out.Note,
			&runtimeMS,
			&out.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		out.Runtime = time.Duration(runtimeMS) * time.Millisecond
		outs = append(outs, out)
	}
	return outs, nil
}
