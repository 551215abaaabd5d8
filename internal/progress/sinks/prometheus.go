package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crateloft/cratesync/internal/progress"
)

// PrometheusSink exports sync progress metrics via Prometheus. It owns all
// collectors for releases started/completed/running plus step and artifact
// counters.
type PrometheusSink struct {
	itemsStarted   prometheus.Counter
	itemsCompleted *prometheus.CounterVec
	itemsRunning   prometheus.Gauge
	itemRuntime    *prometheus.HistogramVec

	stepsTotal     *prometheus.CounterVec
	artifactsTotal prometheus.Counter

	tracker *itemTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		itemsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cratesync_items_started_total",
			Help: "Total releases that have started syncing.",
		}),
		itemsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratesync_items_completed_total",
			Help: "Total releases finished partitioned by result.",
		}, []string{"result"}),
		itemsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cratesync_items_running",
			Help: "Current number of releases being synced.",
		}),
		itemRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cratesync_item_runtime_seconds",
			Help:    "Wall time per finished release.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratesync_steps_total",
			Help: "Pipeline step transitions partitioned by step name.",
		}, []string{"step"}),
		artifactsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cratesync_artifacts_total",
			Help: "Total artifact files reported by workers.",
		}),
		tracker: newItemTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.itemsStarted,
		s.itemsCompleted,
		s.itemsRunning,
		s.itemRuntime,
		s.stepsTotal,
		s.artifactsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindItemStart:
		// Retries re-announce the same sequence index; only the first
		// sighting counts.
		if s.tracker.start(evt.Seq) {
			s.itemsStarted.Inc()
			s.itemsRunning.Inc()
		}
	case progress.KindStep:
		if evt.Step != "" {
			s.stepsTotal.WithLabelValues(evt.Step).Inc()
		}
	case progress.KindArtifact:
		s.artifactsTotal.Inc()
	case progress.KindItemDone:
		s.itemsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		if s.tracker.complete(evt.Seq) {
			s.itemsRunning.Dec()
		}
	case progress.KindItemError:
		s.itemsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
		if s.tracker.complete(evt.Seq) {
			s.itemsRunning.Dec()
		}
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.itemRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type itemTracker struct {
	mu      sync.Mutex
	running map[int64]struct{}
}

func newItemTracker() *itemTracker {
	return &itemTracker{running: make(map[int64]struct{})}
}

func (t *itemTracker) start(seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[seq]; ok {
		return false
	}
	t.running[seq] = struct{}{}
	return true
}

func (t *itemTracker) complete(seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[seq]; !ok {
		return false
	}
	delete(t.running, seq)
	return true
}
