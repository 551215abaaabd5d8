package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/progress"
)

func testItems(n int) []library.Item {
	items := make([]library.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, library.Item{
			ID:    int64(i),
			Title: fmt.Sprintf("Release %d", i),
			Dir:   fmt.Sprintf("/library/%d_release-%d", i, i),
		})
	}
	return items
}

func newTestAggregator(slots, total int) *progress.Aggregator {
	return progress.NewAggregator(progress.AggregatorConfig{
		RunID: progress.UUIDToBytes(uuid.MustParse("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed")),
		Slots: slots,
		Total: total,
	})
}

func TestChooseSubstrate(t *testing.T) {
	t.Parallel()

	require.Equal(t, SubstrateGoroutines, ChooseSubstrate(true, false))
	require.Equal(t, SubstrateGoroutines, ChooseSubstrate(false, true))
	require.Equal(t, SubstrateGoroutines, ChooseSubstrate(true, true))
	require.Equal(t, SubstrateProcesses, ChooseSubstrate(false, false))
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(1, 1)
	sink := &recordingSink{}
	pipeline := func(context.Context, library.Item, *progress.Tracker) error { return nil }

	_, err := New(nil, sink, Config{Slots: 1, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.ErrorContains(t, err, "applier is required")

	_, err = New(agg, nil, Config{Slots: 1, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.ErrorContains(t, err, "error sink is required")

	_, err = New(agg, sink, Config{Slots: 0, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.ErrorContains(t, err, "slot count")

	_, err = New(agg, sink, Config{Slots: 1, Substrate: SubstrateGoroutines})
	require.ErrorContains(t, err, "needs a pipeline")

	_, err = New(agg, sink, Config{Slots: 1, Substrate: SubstrateProcesses})
	require.ErrorContains(t, err, "needs an argv builder")

	_, err = New(agg, sink, Config{Slots: 1, Substrate: "fibers", Pipeline: pipeline})
	require.ErrorContains(t, err, "unknown substrate")
}

// Ten releases over four slots with one failing pipeline: the run finishes
// with nine synced, one failed, and exactly one recorded error carrying the
// failing release's id and error text.
func TestPoolTenItemsFourSlotsOneFailure(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(4, 10)
	sink := &recordingSink{}
	boom := errors.New("probe failed: HTTP Error 429: Too Many Requests")

	pipeline := func(_ context.Context, item library.Item, tr *progress.Tracker) error {
		tr.UpdateStep("Fetching metadata", 20)
		tr.UpdateStep("Downloading cover art", 40)
		tr.UpdateStep("Matching tracks", 50)
		if item.ID == 7 {
			return boom
		}
		tr.UpdateStep("Creating label", 100)
		return nil
	}

	pool, err := New(agg, sink, Config{Slots: 4, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.NoError(t, err)
	require.NoError(t, pool.Run(context.Background(), testItems(10)))

	snap := agg.Snapshot()
	require.Equal(t, 9, snap.Completed)
	require.Equal(t, 1, snap.Errors)
	require.EqualValues(t, 10, snap.LastSeq)
	require.Equal(t, 0, snap.Active)

	recs := sink.all()
	require.Len(t, recs, 1)
	require.EqualValues(t, 7, recs[0].item.ID)
	require.ErrorIs(t, recs[0].err, boom)
}

func TestPoolRecoversPanic(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(2, 3)
	sink := &recordingSink{}
	pipeline := func(_ context.Context, item library.Item, _ *progress.Tracker) error {
		if item.ID == 2 {
			panic("essentia bindings blew up")
		}
		return nil
	}

	pool, err := New(agg, sink, Config{Slots: 2, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.NoError(t, err)
	require.NoError(t, pool.Run(context.Background(), testItems(3)))

	snap := agg.Snapshot()
	require.Equal(t, 2, snap.Completed)
	require.Equal(t, 1, snap.Errors)

	recs := sink.all()
	require.Len(t, recs, 1)
	require.EqualValues(t, 2, recs[0].item.ID)
	require.ErrorContains(t, recs[0].err, "pipeline panicked")
	require.ErrorContains(t, recs[0].err, "essentia bindings blew up")
}

func TestPoolFeedsNothingWhenAlreadyCancelled(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(4, 100)
	sink := &recordingSink{}
	pipeline := func(context.Context, library.Item, *progress.Tracker) error { return nil }

	pool, err := New(agg, sink, Config{Slots: 4, Substrate: SubstrateGoroutines, Pipeline: pipeline})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, pool.Run(ctx, testItems(100)), context.Canceled)
	snap := agg.Snapshot()
	require.EqualValues(t, 0, snap.LastSeq)
	require.Equal(t, 0, snap.Completed+snap.Errors)
	require.Empty(t, sink.all())
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{limit: 8}
	_, err := b.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	require.Equal(t, "abcdefgh", b.Tail())

	_, err = b.Write([]byte("XYZ"))
	require.NoError(t, err)
	require.Equal(t, "defghXYZ", b.Tail())

	require.Equal(t, "", (&tailBuffer{limit: 8}).Tail())
}

func TestLineApplierWritesEventLines(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	applier := NewLineApplier(&buf)
	tr := progress.NewTracker(2, applier, nil, nil)
	tr.UpdateStep("Processing audio", 65)
	tr.AddArtifact("tracks/A1.opus")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"kind":"STEP"`)
	require.Contains(t, lines[0], `"step":"Processing audio"`)
	require.Contains(t, lines[0], `"percent":65`)
	require.Contains(t, lines[0], `"slot":2`)
	require.Contains(t, lines[1], `"kind":"ARTIFACT"`)
	require.Contains(t, lines[1], `"artifact":"tracks/A1.opus"`)
}

func TestProcessRunnerFoldsChildEvents(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	agg := newTestAggregator(1, 1)
	sink := &recordingSink{}
	pool, err := New(agg, sink, Config{
		Slots:     1,
		Substrate: SubstrateProcesses,
		Argv:      helperArgv("ok"),
	})
	require.NoError(t, err)
	require.NoError(t, pool.Run(context.Background(), testItems(1)))

	snap := agg.Snapshot()
	require.Equal(t, 1, snap.Completed)
	require.Equal(t, 0, snap.Errors)
	require.Equal(t, progress.SlotCompleted, snap.Slots[0].Status)
	require.Equal(t, []string{"cover.jpg"}, snap.Slots[0].Artifacts)
	require.Empty(t, sink.all())
}

func TestProcessRunnerUsesChildErrorNote(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	agg := newTestAggregator(1, 1)
	sink := &recordingSink{}
	pool, err := New(agg, sink, Config{
		Slots:     1,
		Substrate: SubstrateProcesses,
		Argv:      helperArgv("fail"),
	})
	require.NoError(t, err)
	require.NoError(t, pool.Run(context.Background(), testItems(1)))

	recs := sink.all()
	require.Len(t, recs, 1)
	require.Equal(t, "no match above threshold for any track", recs[0].err.Error())

	snap := agg.Snapshot()
	require.Equal(t, 1, snap.Errors)
	require.Equal(t, progress.SlotError, snap.Slots[0].Status)
}

func TestProcessRunnerQuotesStderrOnCrash(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	agg := newTestAggregator(1, 1)
	sink := &recordingSink{}
	pool, err := New(agg, sink, Config{
		Slots:     1,
		Substrate: SubstrateProcesses,
		Argv:      helperArgv("crash"),
	})
	require.NoError(t, err)
	require.NoError(t, pool.Run(context.Background(), testItems(1)))

	recs := sink.all()
	require.Len(t, recs, 1)
	require.ErrorContains(t, recs[0].err, "worker crashed")
	require.ErrorContains(t, recs[0].err, "ffmpeg exploded")
}

// helperArgv re-executes this test binary as the release child; see
// TestHelperProcess for the modes.
func helperArgv(mode string) ArgvFunc {
	return func(library.Item, int) (string, []string) {
		return os.Args[0], []string{"-test.run=TestHelperProcess", "--", mode}
	}
}

// TestHelperProcess is not a real test: it is the child half of the process
// substrate tests, selected by re-executing the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	mode := ""
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "ok":
		fmt.Println(`{"kind":"STEP","slot":0,"step":"Fetching metadata","percent":20}`)
		fmt.Println("[download] 42.0% of 9.61MiB")
		fmt.Println(`{"kind":"ARTIFACT","slot":0,"artifact":"cover.jpg"}`)
		os.Exit(0)
	case "fail":
		fmt.Println(`{"kind":"ITEM_ERROR","slot":0,"note":"no match above threshold for any track"}`)
		os.Exit(2)
	case "crash":
		fmt.Fprintln(os.Stderr, "panic: ffmpeg exploded")
		os.Exit(3)
	default:
		os.Exit(0)
	}
}

type sinkRecord struct {
	item library.Item
	err  error
}

type recordingSink struct {
	mu   sync.Mutex
	recs []sinkRecord
}

func (s *recordingSink) RecordRelease(item library.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, sinkRecord{item: item, err: err})
}

func (s *recordingSink) all() []sinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkRecord(nil), s.recs...)
}
