package pipeline

import "context"

// Item is a unit of work produced by a Source and consumed by exactly one
// Processor. Items are treated as immutable once created.
type Item struct {
	ID      string
	Payload []byte
}

// Batch is the ordered result of one Source.Poll call. There is no
// ordering guarantee across batches.
type Batch []Item

// Source produces batches of items.
//
// Poll may block for an arbitrary duration and must return promptly once
// ctx is cancelled. It must be safe to call repeatedly and from several
// poller workers at once. Errors should be classified with Transient or
// Fatal; any other error is treated as unexpected and stops the pipeline
// with an errored queue.
type Source interface {
	Poll(ctx context.Context) (Batch, error)
}

// Processor applies business logic to one item. A returned error is logged
// and counted; the item is not retried.
type Processor interface {
	Process(ctx context.Context, item Item) error
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) (Batch, error)

// Poll calls f(ctx).
func (f SourceFunc) Poll(ctx context.Context) (Batch, error) {
	return f(ctx)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item Item) error

// Process calls f(ctx, item).
func (f ProcessorFunc) Process(ctx context.Context, item Item) error {
	return f(ctx, item)
}
