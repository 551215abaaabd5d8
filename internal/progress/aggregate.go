package progress

import (
	"sync"
	"time"
)

// SlotStatus is the lifecycle state of one worker slot.
type SlotStatus string

// Slot lifecycle: idle until the first item, then working, then completed or
// error, then working again when the next item lands.
const (
	SlotIdle      SlotStatus = "idle"
	SlotWorking   SlotStatus = "working"
	SlotCompleted SlotStatus = "completed"
	SlotError     SlotStatus = "error"
)

// SlotView is the rendered state of one worker slot.
type SlotView struct {
	Index     int
	Status    SlotStatus
	Seq       int64
	ItemID    int64
	Title     string
	Step      string
	Percent   int
	Error     string
	StartedAt time.Time
	Artifacts []string
}

// Snapshot is a consistent copy of the aggregate taken under the lock. The
// renderer paints from snapshots so it never holds the mutex while writing
// to the terminal.
type Snapshot struct {
	RunID     [16]byte
	Total     int
	Completed int
	Errors    int
	Active    int
	LastSeq   int64
	StartedAt time.Time
	Shutdown  bool
	Slots     []SlotView
	Log       []string
}

// AggregatorConfig sizes the aggregate.
type AggregatorConfig struct {
	RunID     [16]byte
	Slots     int
	Total     int
	LogLines  int // log ring capacity, default 6
	Artifacts int // per-slot artifact ring capacity, default 3
	Clock     Clock
	Emitter   Emitter // optional fan-out, e.g. the hub
}

// Aggregator owns every mutable piece of dashboard state. All mutation goes
// through Apply under one mutex; readers take value snapshots.
type Aggregator struct {
	mu sync.Mutex

	runID     [16]byte
	total     int
	logCap    int
	artCap    int
	clock     Clock
	emitter   Emitter
	startedAt time.Time

	seq       int64
	completed int
	errors    int
	shutdown  bool
	slots     []SlotView
	log       []string
}

// NewAggregator initializes the aggregate with idle slots.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = 6
	}
	if cfg.Artifacts <= 0 {
		cfg.Artifacts = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	a := &Aggregator{
		runID:     cfg.RunID,
		total:     cfg.Total,
		logCap:    cfg.LogLines,
		artCap:    cfg.Artifacts,
		clock:     cfg.Clock,
		emitter:   cfg.Emitter,
		startedAt: cfg.Clock.Now(),
		slots:     make([]SlotView, cfg.Slots),
	}
	for i := range a.slots {
		a.slots[i] = SlotView{Index: i, Status: SlotIdle}
	}
	return a
}

// Apply is the single entry point for state mutation. It stamps the run id,
// assigns sequence indices, updates the slot and counters, and forwards the
// enriched event to the emitter. Emit never blocks, so forwarding under the
// lock is safe and keeps sink order consistent with state order.
func (a *Aggregator) Apply(evt Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if evt.Slot < 0 || evt.Slot >= len(a.slots) {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = a.clock.Now()
	}
	evt.RunID = a.runID
	slot := &a.slots[evt.Slot]

	switch evt.Kind {
	case KindItemStart:
		// Repeating the slot's current item keeps its index; any other id
		// takes the next one, even an id some slot carried before. Indices
		// are never handed out twice.
		seq := slot.Seq
		if slot.Seq == 0 || slot.ItemID != evt.ItemID {
			a.seq++
			seq = a.seq
		}
		evt.Seq = seq
		*slot = SlotView{
			Index:     evt.Slot,
			Status:    SlotWorking,
			Seq:       seq,
			ItemID:    evt.ItemID,
			Title:     evt.Title,
			StartedAt: evt.TS,
		}
	case KindStep:
		slot.Step = evt.Step
		slot.Percent = clampPercent(evt.Percent)
		evt.Percent = slot.Percent
		evt.Seq = slot.Seq
		evt.ItemID = slot.ItemID
	case KindArtifact:
		slot.Artifacts = appendRing(slot.Artifacts, evt.Artifact, a.artCap)
		evt.Seq = slot.Seq
		evt.ItemID = slot.ItemID
	case KindItemDone:
		slot.Status = SlotCompleted
		slot.Percent = 100
		a.completed++
		evt.Seq = slot.Seq
		evt.ItemID = slot.ItemID
		evt.Title = slot.Title
		if evt.Dur == 0 && !slot.StartedAt.IsZero() {
			evt.Dur = evt.TS.Sub(slot.StartedAt)
		}
	case KindItemError:
		slot.Status = SlotError
		slot.Error = evt.Note
		a.errors++
		evt.Seq = slot.Seq
		evt.ItemID = slot.ItemID
		evt.Title = slot.Title
		if evt.Dur == 0 && !slot.StartedAt.IsZero() {
			evt.Dur = evt.TS.Sub(slot.StartedAt)
		}
	default:
		return
	}

	if a.emitter != nil {
		a.emitter.Emit(evt)
	}
}

// AppendLog records one line in the capped scroll-back shown by the display.
func (a *Aggregator) AppendLog(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = appendRing(a.log, line, a.logCap)
}

// RequestShutdown marks the run interrupted so trackers report Cancelled.
func (a *Aggregator) RequestShutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown = true
}

// ShutdownRequested reports whether an interrupt was seen.
func (a *Aggregator) ShutdownRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdown
}

// Snapshot copies the aggregate under the lock.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		RunID:     a.runID,
		Total:     a.total,
		Completed: a.completed,
		Errors:    a.errors,
		LastSeq:   a.seq,
		StartedAt: a.startedAt,
		Shutdown:  a.shutdown,
		Slots:     make([]SlotView, len(a.slots)),
		Log:       append([]string(nil), a.log...),
	}
	for i, s := range a.slots {
		s.Artifacts = append([]string(nil), s.Artifacts...)
		snap.Slots[i] = s
		if s.Status == SlotWorking {
			snap.Active++
		}
	}
	return snap
}

func appendRing(ring []string, v string, limit int) []string {
	ring = append(ring, v)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
