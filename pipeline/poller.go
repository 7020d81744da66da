package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/utkarsh5026/pollpipe/internal/algorithms"
	"github.com/utkarsh5026/pollpipe/internal/queue"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// pollerPool runs N workers that keep the queue fed from a Source.
//
// Source.Poll is the only point where a poller observes cancellation.
// Once a batch has been fetched it is pushed without regard to the
// context, so a stop request never discards fetched items.
type pollerPool struct {
	source   Source
	queue    *queue.Queue[Item]
	observer Observer
	limiter  *rate.Limiter
	handles  []*workerHandle
	onFatal  func(error)

	backoffType BackoffType
	backoffInit time.Duration
	backoffMax  time.Duration
	backoffSeed int64

	done chan struct{}
	err  error
}

func newPollerPool(source Source, q *queue.Queue[Item], cfg *config, onFatal func(error)) *pollerPool {
	seed := cfg.backoffSeed
	if !cfg.backoffSeedSet {
		seed = time.Now().UnixNano()
	}

	return &pollerPool{
		source:      source,
		queue:       q,
		observer:    cfg.observer,
		limiter:     cfg.newLimiter(),
		handles:     newWorkerHandles(RolePoller, cfg.pollers),
		onFatal:     onFatal,
		backoffType: cfg.backoffType,
		backoffInit: cfg.backoffInitialDelay,
		backoffMax:  cfg.backoffMaxDelay,
		backoffSeed: seed,
		done:        make(chan struct{}),
	}
}

// start launches the workers. When the last one exits the queue is
// completed, carrying the first unexpected worker error if there was one.
// Cancelling ctx stops every worker at its next poll.
func (p *pollerPool) start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	for _, h := range p.handles {
		g.Go(func() error {
			return p.runWorker(gctx, h)
		})
	}

	go func() {
		err := g.Wait()
		p.err = err
		if p.queue.Complete(err) {
			debugLog("pollers exited, queue completed (err=%v)", err)
		}
		close(p.done)
	}()
}

func (p *pollerPool) runWorker(ctx context.Context, h *workerHandle) (err error) {
	var exitCause error
	defer func() {
		if r := recover(); r != nil {
			err = recoverAsError(r, fmt.Sprintf("poller %d", h.id))
		}
		if err != nil {
			exitCause = err
		}
		h.finish(exitCause)
	}()

	backoff := algorithms.NewBackoff(
		p.backoffType,
		p.backoffInit,
		p.backoffMax,
		rand.New(rand.NewSource(p.backoffSeed+int64(h.id))), // #nosec G404 -- jitter only
	)
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if p.limiter != nil && !p.awaitToken(ctx) {
			return nil
		}

		batch, pollErr := p.source.Poll(ctx)

		if len(batch) > 0 {
			if !p.deliver(h, batch) {
				debugLog("poller %d: queue completed, exiting", h.id)
				return nil
			}
		}

		if pollErr == nil {
			if failures > 0 {
				failures = 0
				backoff.Reset()
			}
			continue
		}

		if ctx.Err() != nil || errors.Is(pollErr, ErrSourceExhausted) {
			return nil
		}

		h.failed.Add(1)
		switch KindOf(pollErr) {
		case KindTransient:
			failures++
			p.observer.TransientSourceError(h.id, pollErr)
			if delay := backoff.NextDelay(failures); delay > 0 {
				if !sleep(ctx, delay) {
					return nil
				}
			}

		case KindFatal:
			p.observer.FatalSourceError(h.id, pollErr)
			exitCause = pollErr
			p.onFatal(pollErr)
			return nil

		default:
			return fmt.Errorf("poller %d: %w", h.id, pollErr)
		}
	}
}

// awaitToken blocks until the limiter grants a poll. It reports false only
// when ctx is done; a deadline further out than the next token is not a
// reason to stop.
func (p *pollerPool) awaitToken(ctx context.Context) bool {
	r := p.limiter.Reserve()
	if !sleep(ctx, r.Delay()) {
		r.Cancel()
		return false
	}
	return true
}

// deliver pushes the whole batch, blocking on a full queue. It reports
// false if the queue was completed before every item was accepted.
func (p *pollerPool) deliver(h *workerHandle, batch Batch) bool {
	n, err := p.queue.PushAll(batch)
	h.handled.Add(uint64(n))
	for _, item := range batch[:n] {
		p.observer.ItemEnqueued(item.ID)
	}
	return err == nil
}

func (p *pollerPool) stats() []WorkerStats {
	return snapshotAll(p.handles)
}
