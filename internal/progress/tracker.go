package progress

// Applier receives raw events for aggregation. The Aggregator is the usual
// implementation; the process substrate swaps in an encoder that writes
// events to stdout instead.
type Applier interface {
	Apply(Event)
}

// Tracker is the handle a worker uses to report progress for its slot. It
// is a thin shim: every method builds one event and hands it to the applier,
// so workers never touch shared state directly.
type Tracker struct {
	slot      int
	applier   Applier
	cancelled func() bool
	clock     Clock
}

// NewTracker binds a slot to an applier. cancelled may be nil when the run
// has no interrupt source.
func NewTracker(slot int, applier Applier, cancelled func() bool, clock Clock) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{slot: slot, applier: applier, cancelled: cancelled, clock: clock}
}

// SetItem announces the item this slot works on next. Repeating the slot's
// current id is a no-op for the run counters, so retries do not inflate
// totals.
func (t *Tracker) SetItem(id int64, title string) {
	t.applier.Apply(Event{
		TS:     t.clock.Now(),
		Kind:   KindItemStart,
		Slot:   t.slot,
		ItemID: id,
		Title:  title,
	})
}

// UpdateStep reports the current pipeline step and completion percentage.
func (t *Tracker) UpdateStep(step string, percent int) {
	t.applier.Apply(Event{
		TS:      t.clock.Now(),
		Kind:    KindStep,
		Slot:    t.slot,
		Step:    step,
		Percent: percent,
	})
}

// AddArtifact records a produced file for the slot's artifact ring.
func (t *Tracker) AddArtifact(path string) {
	t.applier.Apply(Event{
		TS:       t.clock.Now(),
		Kind:     KindArtifact,
		Slot:     t.slot,
		Artifact: path,
	})
}

// Complete marks the current item done.
func (t *Tracker) Complete() {
	t.applier.Apply(Event{
		TS:   t.clock.Now(),
		Kind: KindItemDone,
		Slot: t.slot,
	})
}

// Fail marks the current item failed with a short reason.
func (t *Tracker) Fail(msg string) {
	t.applier.Apply(Event{
		TS:   t.clock.Now(),
		Kind: KindItemError,
		Slot: t.slot,
		Note: msg,
	})
}

// Cancelled reports whether the run was interrupted. Workers poll this
// between steps and wind down without starting new work.
func (t *Tracker) Cancelled() bool {
	return t.cancelled != nil && t.cancelled()
}

// Slot returns the slot index this tracker reports for.
func (t *Tracker) Slot() int { return t.slot }
