package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/utkarsh5026/pollpipe/internal/cpu"
	"github.com/utkarsh5026/pollpipe/internal/queue"
	"golang.org/x/sync/errgroup"
)

// processorPool runs M workers that drain the queue. Processors are never
// cancelled: a worker exits only once the queue is completed and empty.
type processorPool struct {
	processor Processor
	queue     *queue.Queue[Item]
	observer  Observer
	handles   []*workerHandle
	pin       bool

	done chan struct{}
}

func newProcessorPool(processor Processor, q *queue.Queue[Item], cfg *config) *processorPool {
	return &processorPool{
		processor: processor,
		queue:     q,
		observer:  cfg.observer,
		handles:   newWorkerHandles(RoleProcessor, cfg.processors),
		pin:       cfg.pinProcessors,
		done:      make(chan struct{}),
	}
}

// start launches the workers. ctx only provides values to Process; its
// cancellation is deliberately not propagated.
func (p *processorPool) start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	var g errgroup.Group

	for _, h := range p.handles {
		g.Go(func() error {
			return p.runWorker(ctx, h)
		})
	}

	go func() {
		// Worker errors are recorded on their handles.
		_ = g.Wait()
		close(p.done)
	}()
}

func (p *processorPool) runWorker(ctx context.Context, h *workerHandle) error {
	if p.pin {
		release, err := cpu.Pin(h.id)
		if err != nil {
			debugLog("processor %d: pin failed: %v", h.id, err)
		}
		defer release()
	}

	for {
		item, err := p.queue.Pop()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				h.finish(nil)
				return nil
			}
			// Completed with an error: everything buffered has been drained.
			h.finish(err)
			return err
		}

		if perr := p.processWithRecovery(ctx, h.id, item); perr != nil {
			h.failed.Add(1)
			p.notify(h.id, func() { p.observer.ProcessingFailed(item.ID, h.id, perr) })
			continue
		}
		h.handled.Add(1)
		p.notify(h.id, func() { p.observer.ItemProcessed(item.ID, h.id) })
	}
}

// notify runs an observer callback. A panicking observer loses the event
// but never a processor: the worker keeps draining.
func (p *processorPool) notify(worker int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			debugLog("processor %d: observer panic: %v", worker, r)
		}
	}()
	fn()
}

func (p *processorPool) processWithRecovery(ctx context.Context, worker int, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverAsError(r, fmt.Sprintf("processor %d", worker))
		}
	}()
	return p.processor.Process(ctx, item)
}

func (p *processorPool) stats() []WorkerStats {
	return snapshotAll(p.handles)
}
