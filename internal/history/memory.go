package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps run history in-memory for development and for runs
// configured without a database.
type MemoryRepository struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]Run
	outcomes map[uuid.UUID]map[int64]ItemOutcome
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs:     make(map[uuid.UUID]Run),
		outcomes: make(map[uuid.UUID]map[int64]ItemOutcome),
	}
}

// BeginRun records the run as running. Repeating the same id keeps the
// original record.
func (r *MemoryRepository) BeginRun(_ context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[runID]; exists {
		return nil
	}
	r.runs[runID] = Run{
		ID:        runID,
		StartedAt: startedAt,
		Status:    RunRunning,
		Total:     total,
	}
	return nil
}

// FinishRun marks the run terminal with final counters.
func (r *MemoryRepository) FinishRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status RunStatus,
	completed, failed int,
	note *string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	ts := finishedAt
	run.FinishedAt = &ts
	run.Status = status
	run.Completed = completed
	run.Errors = failed
	run.Note = note
	r.runs[runID] = run
	return nil
}

// RecordOutcome upserts one release outcome keyed by (run, seq).
func (r *MemoryRepository) RecordOutcome(_ context.Context, out ItemOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRun := r.outcomes[out.RunID]
	if byRun == nil {
		byRun = make(map[int64]ItemOutcome)
		r.outcomes[out.RunID] = byRun
	}
	byRun[out.Seq] = out
	return nil
}

// GetRun fetches a run by id.
func (r *MemoryRepository) GetRun(_ context.Context, runID uuid.UUID) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (r *MemoryRepository) ListRuns(_ context.Context, status *RunStatus, limit, offset int) ([]Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return page(runs, limit, offset), nil
}

// ListOutcomes returns the recorded outcomes for one run ordered by seq.
func (r *MemoryRepository) ListOutcomes(
	_ context.Context,
	runID uuid.UUID,
	limit, offset int,
) ([]ItemOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byRun := r.outcomes[runID]
	outs := make([]ItemOutcome, 0, len(byRun))
	for _, out := range byRun {
		outs = append(outs, out)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i].Seq < outs[j].Seq })
	return page(outs, limit, offset), nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]T, len(rows))
	copy(out, rows)
	return out
}
