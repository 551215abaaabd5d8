package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/progress"
	"github.com/crateloft/cratesync/internal/publisher"
)

// CompletionEvent is the JSON payload published when a release finishes.
type CompletionEvent struct {
	RunID     string        `json:"run_id"`
	ReleaseID int64         `json:"release_id"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	Note      string        `json:"note,omitempty"`
	Runtime   time.Duration `json:"runtime_ns"`
	Finished  time.Time     `json:"finished_at"`
}

// PublisherSink forwards terminal release events to a publisher topic.
// Publish failures are logged, not returned; event fanout must never stall
// the sync run on a slow broker.
type PublisherSink struct {
	pub    publisher.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink constructs a PublisherSink for the given topic.
func NewPublisherSink(pub publisher.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes one CompletionEvent per terminal event in the batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Kind != progress.KindItemDone && evt.Kind != progress.KindItemError {
			continue
		}
		payload := CompletionEvent{
			RunID:     evt.RunUUID().String(),
			ReleaseID: evt.ItemID,
			Title:     evt.Title,
			Status:    "completed",
			Runtime:   evt.Dur,
			Finished:  evt.TS,
		}
		if evt.Kind == progress.KindItemError {
			payload.Status = "error"
			payload.Note = evt.Note
		}
		if _, err := s.pub.Publish(ctx, s.topic, payload); err != nil {
			s.logger.Warn("completion publish failed",
				zap.Int64("release_id", evt.ItemID),
				zap.Error(fmt.Errorf("publish to %s: %w", s.topic, err)))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
