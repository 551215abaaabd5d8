package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/history"
	"github.com/crateloft/cratesync/internal/progress"
)

// StoreSink persists release outcomes via a history.RunRepository. Within a
// batch it collapses redelivered terminal events per sequence index so each
// release is written once per flush.
type StoreSink struct {
	repo   history.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo history.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses terminal events per release and forwards them to the
// repository. It respects ctx deadlines and returns repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	outcomes := make(map[int64]history.ItemOutcome)
	var order []int64

	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindItemDone, progress.KindItemError:
			if evt.Seq == 0 {
				continue
			}
			if _, seen := outcomes[evt.Seq]; !seen {
				order = append(order, evt.Seq)
			}
			outcomes[evt.Seq] = toOutcome(evt)
		}
	}

	for _, seq := range order {
		if err := s.repo.RecordOutcome(ctx, outcomes[seq]); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
	}
	return nil
}

func toOutcome(evt progress.Event) history.ItemOutcome {
	out := history.ItemOutcome{
		RunID:      evt.RunUUID(),
		Seq:        evt.Seq,
		ReleaseID:  evt.ItemID,
		Title:      evt.Title,
		Status:     history.RunSuccess,
		Runtime:    evt.Dur,
		FinishedAt: evt.TS,
	}
	if evt.Kind == progress.KindItemError {
		out.Status = history.RunError
		if evt.Note != "" {
			note := evt.Note
			out.Note = &note
		}
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
