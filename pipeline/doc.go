// Package pipeline moves work items from a batch-producing Source to a pool
// of Processors through a bounded, backpressured queue, without silently
// losing work on shutdown, source failure or processing failure.
//
// A Supervisor owns three parts:
//
//   - N pollers that repeatedly call Source.Poll and push each batch into the queue
//   - a bounded FIFO queue of fixed capacity that blocks pollers when full
//   - M processors that pop items and call Processor.Process for each one
//
// # Basic Usage
//
//	sup, err := pipeline.New(source, processor,
//	    pipeline.WithPollers(2),
//	    pipeline.WithProcessors(8),
//	    pipeline.WithQueueCapacity(128),
//	    pipeline.WithShutdownTimeout(10*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	report, err := sup.Run(ctx) // blocks until stopped
//
// # Cancellation
//
// Cancelling the context passed to Run, or calling Stop, stops intake.
// Pollers observe cancellation only while waiting in Source.Poll: a batch
// that has already been fetched is always pushed in full, even if the queue
// is full and a stop was requested meanwhile. Processors are never
// cancelled. They keep draining until the queue is completed and empty.
//
// # Source Errors
//
// Poll errors are classified with Transient and Fatal:
//
//	return nil, pipeline.Transient(err) // retried by the same poller
//	return nil, pipeline.Fatal(err)     // stops intake pipeline-wide
//
// Transient errors are retried immediately unless WithPollBackoff is set.
// A fatal error asks the Supervisor to stop; buffered items are still
// delivered. Any other error is unexpected: it cancels the sibling pollers
// and completes the queue with that error, which processors observe only
// after the buffer has been drained.
//
// # Processing Errors
//
// An error or panic from Process is reported to the Observer and counted.
// The item is not retried and the pipeline keeps running.
//
// # Shutdown Timeout
//
// Run waits at most the shutdown timeout for processors to drain. On
// timeout it returns a Report with State StateTimedOut and an error
// wrapping ErrShutdownTimeout; processors continue in the background.
package pipeline
