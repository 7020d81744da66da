package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/utkarsh5026/pollpipe/internal/queue"
)

// Supervisor owns the lifecycle of a pipeline: it starts the processors and
// pollers, stops intake on shutdown and waits, bounded by the shutdown
// timeout, for the processors to drain the queue.
//
// A Supervisor runs once.
type Supervisor struct {
	cfg        *config
	queue      *queue.Queue[Item]
	pollers    *pollerPool
	processors *processorPool

	state   atomic.Int32
	started atomic.Bool

	stopOnce  sync.Once
	stopC     chan struct{}
	stopCause error
}

// New creates a Supervisor that moves items from source to processor.
func New(source Source, processor Processor, opts ...Option) (*Supervisor, error) {
	if source == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if processor == nil {
		return nil, errors.New("pipeline: nil processor")
	}

	cfg := newConfig(opts...)
	q, err := queue.New[Item](cfg.queueCapacity)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:   cfg,
		queue: q,
		stopC: make(chan struct{}),
	}
	s.pollers = newPollerPool(source, q, cfg, s.RequestStop)
	s.processors = newProcessorPool(processor, q, cfg)
	return s, nil
}

// RequestStop asks a running pipeline to stop taking new batches. It may be
// called from any goroutine, any number of times; only the first cause is
// kept. A nil cause means an ordinary shutdown.
func (s *Supervisor) RequestStop(cause error) {
	s.stopOnce.Do(func() {
		s.stopCause = cause
		close(s.stopC)
	})
}

// Stop is RequestStop(nil).
func (s *Supervisor) Stop() {
	s.RequestStop(nil)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	debugLog("supervisor: %s", st)
}

// Run starts the pipeline and blocks until it has stopped.
//
// Stopping begins when ctx is cancelled, when RequestStop is called (for
// instance by a poller that hit a fatal source error) or when every poller
// has exited on its own. Pollers are then cancelled and Run waits for the
// processors to drain whatever was enqueued. If that takes longer than the
// shutdown timeout Run returns ErrShutdownTimeout without waiting further;
// processors keep running in the background until the queue is empty.
//
// The returned error is nil for an ordinary, fully drained shutdown.
// Otherwise it aggregates the fatal source error, the error the queue was
// completed with and ErrShutdownTimeout, whichever apply.
func (s *Supervisor) Run(ctx context.Context) (Report, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyStarted
	}
	begin := time.Now()

	s.setState(StateStarting)
	s.processors.start(ctx)

	pollCtx, cancelPolls := context.WithCancel(ctx)
	defer cancelPolls()
	s.pollers.start(pollCtx)
	s.setState(StateRunning)

	var cause error
	select {
	case <-ctx.Done():
	case <-s.stopC:
		cause = s.stopCause
	case <-s.pollers.done:
		cause = s.pollers.err
	}

	s.setState(StateStopping)
	s.cfg.observer.PipelineStopping(cause)
	cancelPolls()

	final := s.awaitDrain()
	report := s.report(final, cause, time.Since(begin))
	s.setState(final)
	s.cfg.observer.PipelineStopped(report)

	var result *multierror.Error
	if cause != nil {
		result = multierror.Append(result, cause)
	}
	if report.QueueErr != nil && !errors.Is(cause, report.QueueErr) {
		result = multierror.Append(result, report.QueueErr)
	}
	if final == StateTimedOut {
		result = multierror.Append(result, ErrShutdownTimeout)
	}
	return report, result.ErrorOrNil()
}

func (s *Supervisor) awaitDrain() State {
	timer := time.NewTimer(s.cfg.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-s.processors.done:
		return StateDrained
	case <-timer.C:
		return StateTimedOut
	}
}

func (s *Supervisor) report(final State, cause error, elapsed time.Duration) Report {
	pollers := s.pollers.stats()
	processors := s.processors.stats()
	processed, failed := sumStats(processors)
	pushed, _ := s.queue.Counts()

	return Report{
		State:      final,
		Cause:      cause,
		QueueErr:   s.queue.Err(),
		Enqueued:   pushed,
		Processed:  processed,
		Failed:     failed,
		Remaining:  s.queue.Len(),
		Pollers:    pollers,
		Processors: processors,
		Elapsed:    elapsed,
	}
}
