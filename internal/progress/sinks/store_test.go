package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crateloft/cratesync/internal/history"
	"github.com/crateloft/cratesync/internal/progress"
)

// TestStoreSinkPersistsOutcomes ensures terminal events become repository rows
// with redeliveries collapsed per sequence index.
func TestStoreSinkPersistsOutcomes(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindItemStart, Seq: 1, ItemID: 10, Title: "First"},
		{
			RunID: runID, TS: now.Add(30 * time.Second), Kind: progress.KindItemDone,
			Seq: 1, ItemID: 10, Title: "First", Dur: 30 * time.Second,
		},
		{
			RunID: runID, TS: now.Add(40 * time.Second), Kind: progress.KindItemError,
			Seq: 2, ItemID: 20, Title: "Second", Note: "probe timed out", Dur: 12 * time.Second,
		},
		// Redelivered terminal event for seq 2; the later row wins.
		{
			RunID: runID, TS: now.Add(41 * time.Second), Kind: progress.KindItemError,
			Seq: 2, ItemID: 20, Title: "Second", Note: "probe timed out twice", Dur: 13 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.outcomes, 2)
	first := repo.outcomes[0]
	require.Equal(t, runUUID, first.RunID)
	require.Equal(t, int64(1), first.Seq)
	require.Equal(t, int64(10), first.ReleaseID)
	require.Equal(t, history.RunSuccess, first.Status)
	require.Nil(t, first.Note)

	second := repo.outcomes[1]
	require.Equal(t, int64(2), second.Seq)
	require.Equal(t, history.RunError, second.Status)
	require.NotNil(t, second.Note)
	require.Equal(t, "probe timed out twice", *second.Note)
	require.Equal(t, 13*time.Second, second.Runtime)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Kind: progress.KindItemDone, Seq: 1, ItemID: 10},
	})
	require.Error(t, err)
}

// TestStoreSinkIgnoresNonTerminalEvents ensures step chatter does not hit the repository.
func TestStoreSinkIgnoresNonTerminalEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindItemStart, Seq: 1, ItemID: 10, Title: "First"},
		{RunID: runID, TS: now, Kind: progress.KindStep, Seq: 1, Step: "Fetching metadata", Percent: 20},
		{RunID: runID, TS: now, Kind: progress.KindArtifact, Seq: 1, Artifact: "cover.jpg"},
	}))
	require.Empty(t, repo.outcomes)
}

type fakeRunRepo struct {
	fail     bool
	outcomes []history.ItemOutcome
}

func (f *fakeRunRepo) BeginRun(context.Context, uuid.UUID, time.Time, int) error {
	return nil
}

func (f *fakeRunRepo) FinishRun(
	context.Context,
	uuid.UUID,
	time.Time,
	history.RunStatus,
	int, int,
	*string,
) error {
	return nil
}

func (f *fakeRunRepo) RecordOutcome(_ context.Context, out history.ItemOutcome) error {
	if f.fail {
		return assertErr("record")
	}
	f.outcomes = append(f.outcomes, out)
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (history.Run, error) {
	return history.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *history.RunStatus, int, int) ([]history.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListOutcomes(context.Context, uuid.UUID, int, int) ([]history.ItemOutcome, error) {
	return nil, assertErr("outcomes")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
