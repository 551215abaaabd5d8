// Package executor runs release pipelines over a fixed pool of worker slots.
// The pool never aborts on an item failure: errors and panics are caught at
// the task boundary, recorded, and the slot moves on to the next release.
package executor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/progress"
)

// Substrate is the execution vehicle for worker slots, decided once per run.
type Substrate string

const (
	// SubstrateGoroutines runs pipelines in-process.
	SubstrateGoroutines Substrate = "goroutines"
	// SubstrateProcesses runs each release in its own child process.
	SubstrateProcesses Substrate = "processes"
)

// ChooseSubstrate applies the startup rule. The live display and the
// metadata-only mode keep the progress hot path in one address space;
// everything else isolates each release in a child process so a native tool
// crash takes down one release, not the run.
func ChooseSubstrate(liveMonitor, metadataOnly bool) Substrate {
	if liveMonitor || metadataOnly {
		return SubstrateGoroutines
	}
	return SubstrateProcesses
}

// PipelineFunc runs the full pipeline for one release, reporting through the
// slot tracker. A non-nil error marks the release failed.
type PipelineFunc func(ctx context.Context, item library.Item, tr *progress.Tracker) error

// ErrorSink receives failures caught at the task boundary.
type ErrorSink interface {
	RecordRelease(item library.Item, err error)
}

// ArgvFunc builds the command line that runs one release in a child process.
// The command must speak the worker event protocol on stdout.
type ArgvFunc func(item library.Item, slot int) (name string, args []string)

// Config controls the pool.
type Config struct {
	// Slots is the worker count; each slot owns one tracker index.
	Slots int
	// Substrate picks goroutines or processes.
	Substrate Substrate
	// Pipeline executes a release in-process. Required for the goroutine
	// substrate.
	Pipeline PipelineFunc
	// Argv spawns a release child. Required for the process substrate.
	Argv ArgvFunc
	// Cancelled tells trackers the run was interrupted. Optional.
	Cancelled func() bool
	// Clock stamps tracker events; nil means the system clock.
	Clock progress.Clock
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// runner executes one release bound to a slot tracker.
type runner interface {
	run(ctx context.Context, item library.Item, tr *progress.Tracker) error
}

// Pool dispatches releases to a fixed set of worker slots.
type Pool struct {
	cfg     Config
	applier progress.Applier
	sink    ErrorSink
	runner  runner
	logger  *zap.Logger
}

// New validates the configuration and builds the pool. Construction errors
// are fatal startup errors; nothing about the pool is recoverable later.
func New(applier progress.Applier, sink ErrorSink, cfg Config) (*Pool, error) {
	if applier == nil {
		return nil, fmt.Errorf("executor: applier is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("executor: error sink is required")
	}
	if cfg.Slots < 1 {
		return nil, fmt.Errorf("executor: slot count %d, need at least 1", cfg.Slots)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var r runner
	switch cfg.Substrate {
	case SubstrateGoroutines:
		if cfg.Pipeline == nil {
			return nil, fmt.Errorf("executor: goroutine substrate needs a pipeline")
		}
		r = funcRunner{pipeline: cfg.Pipeline}
	case SubstrateProcesses:
		if cfg.Argv == nil {
			return nil, fmt.Errorf("executor: process substrate needs an argv builder")
		}
		r = &processRunner{argv: cfg.Argv, logger: cfg.Logger}
	default:
		return nil, fmt.Errorf("executor: unknown substrate %q", cfg.Substrate)
	}

	return &Pool{
		cfg:     cfg,
		applier: applier,
		sink:    sink,
		runner:  r,
		logger:  cfg.Logger,
	}, nil
}

// Run dispatches every item and blocks until all slots drain. Item failures
// never surface here; the only error is a cancelled context, which stops
// feeding new items.
func (p *Pool) Run(ctx context.Context, items []library.Item) error {
	jobs := make(chan library.Item)
	var wg sync.WaitGroup

	for slot := 0; slot < p.cfg.Slots; slot++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr := progress.NewTracker(n, p.applier, p.cfg.Cancelled, p.cfg.Clock)
			for item := range jobs {
				p.runOne(ctx, item, tr)
			}
		}(slot)
	}

feed:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

// runOne is the task boundary: announce the item, run it, and translate any
// failure into a recorded error plus a slot error state.
func (p *Pool) runOne(ctx context.Context, item library.Item, tr *progress.Tracker) {
	tr.SetItem(item.ID, item.Title)
	p.logger.Debug("release dispatched",
		zap.Int64("release_id", item.ID),
		zap.Int("slot", tr.Slot()),
	)

	err := p.safeRun(ctx, item, tr)
	if err != nil {
		p.sink.RecordRelease(item, err)
		tr.Fail(err.Error())
		p.logger.Error("release failed",
			zap.Int64("release_id", item.ID),
			zap.Int("slot", tr.Slot()),
			zap.Error(err),
		)
		return
	}
	tr.Complete()
	p.logger.Info("release synced",
		zap.Int64("release_id", item.ID),
		zap.Int("slot", tr.Slot()),
	)
}

func (p *Pool) safeRun(ctx context.Context, item library.Item, tr *progress.Tracker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
	}()
	return p.runner.run(ctx, item, tr)
}

// funcRunner executes the pipeline in-process.
type funcRunner struct {
	pipeline PipelineFunc
}

func (r funcRunner) run(ctx context.Context, item library.Item, tr *progress.Tracker) error {
	return r.pipeline(ctx, item, tr)
}
