// Package history declares interfaces for persisting sync run history.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("history record not found")

// RunStatus mirrors the sync_runs status column.
type RunStatus string

// Run statuses persisted in sync_runs.status.
const (
	RunRunning     RunStatus = "running"
	RunSuccess     RunStatus = "success"
	RunError       RunStatus = "error"
	RunInterrupted RunStatus = "interrupted"
)

// Run models one orchestrator invocation for API responses.
type Run struct {
	// ID is the run identifier shared with progress events.
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time
	// Status is running/success/error/interrupted.
	Status RunStatus
	// Total is how many releases the run set out to sync.
	Total int
	// Completed counts releases that finished cleanly.
	Completed int
	// Errors counts releases that failed.
	Errors int
	// Note optionally stores the final failure reason.
	Note *string
}

// ItemOutcome captures the terminal state of one release within a run.
type ItemOutcome struct {
	// RunID is the owning run.
	RunID uuid.UUID
	// Seq is the order the release entered the run, starting at 1.
	Seq int64
	// ReleaseID is the collection release identifier.
	ReleaseID int64
	// Title is the release title at sync time.
	Title string
	// Status is success or error.
	Status RunStatus
	// Note optionally stores the failure reason.
	Note *string
	// Runtime is the wall time the release took.
	Runtime time.Duration
	// FinishedAt is when the release reached its terminal state.
	FinishedAt time.Time
}

// RunRepository persists run lifecycles and per-release outcomes.
type RunRepository interface {
	// BeginRun records the run as running; repeating the same run id is a no-op.
	BeginRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error
	// FinishRun marks the run terminal with final counters and an optional note.
	FinishRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		completed, failed int,
		note *string,
	) error
	// RecordOutcome upserts one release outcome keyed by (run, seq).
	RecordOutcome(ctx context.Context, out ItemOutcome) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListOutcomes returns the recorded outcomes for one run ordered by seq.
	ListOutcomes(ctx context.Context, runID uuid.UUID, limit, offset int) ([]ItemOutcome, error)
}
