package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordApplier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordApplier) Apply(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordApplier) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestTrackerBuildsSlotTaggedEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordApplier{}
	tracker := NewTracker(2, rec, nil, stubClock{now: now})

	tracker.SetItem(41, "Some Release")
	tracker.UpdateStep("Processing audio", 60)
	tracker.AddArtifact("1_waveform.png")
	tracker.Complete()
	tracker.Fail("probe timed out")

	events := rec.all()
	require.Len(t, events, 5)

	wantKinds := []Kind{KindItemStart, KindStep, KindArtifact, KindItemDone, KindItemError}
	for i, evt := range events {
		require.Equal(t, wantKinds[i], evt.Kind)
		require.Equal(t, 2, evt.Slot)
		require.Equal(t, now, evt.TS)
	}
	require.Equal(t, int64(41), events[0].ItemID)
	require.Equal(t, "Some Release", events[0].Title)
	require.Equal(t, "Processing audio", events[1].Step)
	require.Equal(t, 60, events[1].Percent)
	require.Equal(t, "1_waveform.png", events[2].Artifact)
	require.Equal(t, "probe timed out", events[4].Note)
}

func TestTrackerCancelled(t *testing.T) {
	t.Parallel()

	rec := &recordApplier{}

	require.False(t, NewTracker(0, rec, nil, nil).Cancelled())

	flag := false
	tracker := NewTracker(0, rec, func() bool { return flag }, nil)
	require.False(t, tracker.Cancelled())
	flag = true
	require.True(t, tracker.Cancelled())
}

func TestTrackerSlot(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, NewTracker(3, &recordApplier{}, nil, nil).Slot())
}
