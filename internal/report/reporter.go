package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/clock/system"
	"github.com/crateloft/cratesync/internal/library"
)

// Clock abstracts time so tests can pin the run window.
type Clock interface {
	Now() time.Time
}

// Totals is the run outcome the summary reports against.
type Totals struct {
	Total     int
	Completed int
	Errors    int
}

// NotAttempted is the remainder the run never reached.
func (t Totals) NotAttempted() int {
	n := t.Total - t.Completed - t.Errors
	if n < 0 {
		return 0
	}
	return n
}

// TrackError attaches the track and URL in play to a pipeline failure so the
// boundary that records it can fill the release context.
type TrackError struct {
	Track string
	URL   string
	Err   error
}

func (e *TrackError) Error() string {
	if e.Track == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("track %s: %v", e.Track, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

// Config configures a Reporter.
type Config struct {
	// Dir is where the summary file lands.
	Dir string
	// RunID names the run in the summary header.
	RunID uuid.UUID
	// Clock defaults to the system clock.
	Clock Clock
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Reporter accumulates failure records for one run and writes the summary
// file exactly once, no matter how the run ends. Safe for concurrent use.
type Reporter struct {
	dir    string
	runID  uuid.UUID
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	started time.Time
	records []ErrorRecord

	finalize sync.Once
	path     string
	writeErr error
}

// New creates a Reporter and stamps the run start time.
func New(cfg Config) *Reporter {
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reporter{
		dir:     cfg.Dir,
		runID:   cfg.RunID,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		started: cfg.Clock.Now(),
	}
}

// RecordRelease captures a failure bound to one release. When err wraps a
// TrackError the track and URL it names are lifted into the record context.
// A nil err is ignored.
func (r *Reporter) RecordRelease(item library.Item, err error) {
	if err == nil {
		return
	}
	rc := &ReleaseContext{ID: item.ID, Title: item.Title}
	var te *TrackError
	if errors.As(err, &te) {
		rc.Track = te.Track
		rc.URL = te.URL
	}
	r.append(ErrorRecord{
		Time:     r.clock.Now(),
		Scope:    ScopeRelease,
		Category: Classify(err.Error()),
		Message:  err.Error(),
		Release:  rc,
	})
}

// RecordRun captures a run-level failure. err may be nil; an empty record
// is ignored.
func (r *Reporter) RecordRun(msg string, err error) {
	if msg == "" && err == nil {
		return
	}
	text := msg
	switch {
	case text == "":
		text = err.Error()
	case err != nil:
		text = fmt.Sprintf("%s: %v", msg, err)
	}
	r.append(ErrorRecord{
		Time:     r.clock.Now(),
		Scope:    ScopeRun,
		Category: Classify(text),
		Message:  text,
	})
}

func (r *Reporter) append(rec ErrorRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of the captured records in arrival order.
func (r *Reporter) Records() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Counts tallies the captured records per category.
func (r *Reporter) Counts() map[Category]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Category]int, 4)
	for _, rec := range r.records {
		counts[rec.Category]++
	}
	return counts
}

// Started reports when the reporter was created.
func (r *Reporter) Started() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Finalize renders the summary and writes it to Dir. Only the first call
// writes; every call returns the same path and write outcome, so the normal
// exit path, the fatal path and the interrupt handler can all call it without
// coordinating. The filename carries the run start time.
func (r *Reporter) Finalize(t Totals) (string, error) {
	r.finalize.Do(func() {
		r.mu.Lock()
		started := r.started
		records := make([]ErrorRecord, len(r.records))
		copy(records, r.records)
		r.mu.Unlock()

		ended := r.clock.Now()
		body := renderSummary(r.runID, started, ended, t, records)
		name := fmt.Sprintf("sync_summary_%s.txt", started.Format("20060102-150405"))
		path := filepath.Join(r.dir, name)

		if err := os.MkdirAll(r.dir, 0o750); err != nil {
			r.writeErr = fmt.Errorf("create summary dir: %w", err)
		} else if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			r.writeErr = fmt.Errorf("write summary: %w", err)
		}
		if r.writeErr != nil {
			r.logger.Error("sync summary not written", zap.Error(r.writeErr))
			return
		}
		r.path = path
		r.logger.Info("sync summary written",
			zap.String("path", path),
			zap.Int("errors", len(records)),
		)
	})
	return r.path, r.writeErr
}
