package progress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const dropWarnInterval = 5 * time.Second

// HubConfig tunes the event fan-out.
type HubConfig struct {
	// BufferSize is how many events may queue before Emit starts dropping.
	BufferSize int

	// MaxBatch caps how many queued events one sink flush may carry.
	MaxBatch int

	// SinkTimeout bounds a single Consume call so one stuck sink cannot
	// stall the dispatch loop.
	SinkTimeout time.Duration

	// BaseContext parents the per-flush contexts. Defaults to Background.
	BaseContext context.Context

	Logger *zap.Logger
}

func (c *HubConfig) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 256
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 5 * time.Second
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Hub fans enriched events out to sinks. Emit never blocks: when the queue
// is full events are dropped and counted, because stalling a worker over a
// slow sink is worse than losing a progress tick. A single goroutine drains
// the queue, coalescing whatever is buffered into one batch per flush.
type Hub struct {
	cfg   HubConfig
	sinks []Sink
	queue chan Event
	quit  chan struct{}
	done  chan struct{}

	closed   atomic.Bool
	dropped  atomic.Uint64
	lastWarn atomic.Int64

	log *zap.Logger
}

// NewHub starts the dispatch loop for the given sinks.
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:   cfg,
		sinks: sinks,
		queue: make(chan Event, cfg.BufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   cfg.Logger,
	}
	go h.run()
	return h
}

// Emit queues an event for delivery. Invalid events are discarded with a
// warning; a full queue increments the drop counter instead of blocking.
func (h *Hub) Emit(evt Event) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	if err := evt.Validate(); err != nil {
		h.log.Warn("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.queue <- evt:
	default:
		h.dropped.Add(1)
		h.warnDrops()
	}
}

// Dropped reports how many events were discarded since the hub started.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close drains the queue, flushes, and closes every sink. After Close
// returns no sink will be called again.
func (h *Hub) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.quit)
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	for _, s := range h.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if n := h.dropped.Load(); n > 0 {
		h.log.Warn("progress events were dropped", zap.Uint64("count", n))
	}
	return errors.Join(errs...)
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case evt := <-h.queue:
			h.flush(h.collect(evt))
		case <-h.quit:
			h.drain()
			return
		}
	}
}

// collect merges whatever is already queued behind first into one batch.
func (h *Hub) collect(first Event) []Event {
	batch := make([]Event, 1, 16)
	batch[0] = first
	for len(batch) < h.cfg.MaxBatch {
		select {
		case evt := <-h.queue:
			batch = append(batch, evt)
		default:
			return batch
		}
	}
	return batch
}

func (h *Hub) drain() {
	for {
		select {
		case evt := <-h.queue:
			h.flush(h.collect(evt))
		default:
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	for _, s := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		err := s.Consume(ctx, batch)
		cancel()
		if err != nil {
			h.log.Warn("progress sink rejected batch",
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) warnDrops() {
	now := time.Now().UnixNano()
	last := h.lastWarn.Load()
	if now-last < int64(dropWarnInterval) {
		return
	}
	if h.lastWarn.CompareAndSwap(last, now) {
		h.log.Warn("progress queue full, dropping events",
			zap.Uint64("dropped_total", h.dropped.Load()),
		)
	}
}
