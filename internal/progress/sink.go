package progress

import "context"

// Sink consumes batches of enriched events. Implementations must tolerate
// redelivery: the hub retries nothing, but callers may replay a run from a
// store, so consuming the same event twice has to be harmless.
type Sink interface {
	// Consume processes a batch. The hub calls it from a single goroutine,
	// so implementations need no internal locking for ordering.
	Consume(ctx context.Context, events []Event) error

	// Close flushes buffered state and releases resources.
	Close(ctx context.Context) error
}

// Emitter is the narrow producer-side interface. The Aggregator forwards
// enriched events through it so callers can run without a hub.
type Emitter interface {
	// Emit hands off an event without blocking.
	Emit(evt Event)
}
