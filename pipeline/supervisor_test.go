package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_RejectsNilCollaborators(t *testing.T) {
	if _, err := New(nil, newRecordingProcessor()); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New(countedSource(1, 1), nil); err == nil {
		t.Error("expected error for nil processor")
	}
}

func TestSupervisor_RunTwice(t *testing.T) {
	sup, err := New(countedSource(3, 1), newRecordingProcessor(), WithShutdownTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := sup.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := sup.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run error = %v, want ErrAlreadyStarted", err)
	}
}

func TestSupervisor_Conservation(t *testing.T) {
	for _, capacity := range []int{1, 2, 4, 16} {
		for _, total := range []int{0, 1, 7, 250} {
			t.Run(fmt.Sprintf("cap=%d/items=%d", capacity, total), func(t *testing.T) {
				proc := newRecordingProcessor()
				obs := &recordingObserver{}
				sup, err := New(countedSource(total, 3), proc,
					WithQueueCapacity(capacity),
					WithPollers(3),
					WithProcessors(4),
					WithShutdownTimeout(5*time.Second),
					WithObserver(obs),
				)
				if err != nil {
					t.Fatalf("New: %v", err)
				}

				report, err := sup.Run(context.Background())
				if err != nil {
					t.Fatalf("Run: %v", err)
				}

				if report.State != StateDrained {
					t.Errorf("state = %s, want drained", report.State)
				}
				if report.Enqueued != uint64(total) || report.Processed != uint64(total) {
					t.Errorf("enqueued=%d processed=%d, want %d each", report.Enqueued, report.Processed, total)
				}
				if report.Remaining != 0 || report.Unprocessed() != 0 {
					t.Errorf("remaining=%d unprocessed=%d, want 0", report.Remaining, report.Unprocessed())
				}

				seen := proc.counts()
				if len(seen) != total {
					t.Errorf("processed %d distinct items, want %d", len(seen), total)
				}
				for id, n := range seen {
					if n != 1 {
						t.Errorf("item %s processed %d times", id, n)
					}
				}

				obs.mu.Lock()
				defer obs.mu.Unlock()
				if obs.enqueued != total || obs.processed != total {
					t.Errorf("observer saw enqueued=%d processed=%d, want %d", obs.enqueued, obs.processed, total)
				}
				if len(obs.stopping) != 1 || len(obs.stopped) != 1 {
					t.Errorf("stopping/stopped events = %d/%d, want 1/1", len(obs.stopping), len(obs.stopped))
				}
			})
		}
	}
}

func TestSupervisor_FatalSourceErrorDrains(t *testing.T) {
	errCreds := errors.New("credentials revoked")
	src := &scriptedSource{fn: func(ctx context.Context, call int) (Batch, error) {
		switch {
		case call <= 5:
			return makeBatch((call-1)*2, 2), nil
		case call == 6:
			return nil, Fatal(errCreds)
		default:
			return blockUntilCancelled(ctx)
		}
	}}

	proc := newRecordingProcessor()
	proc.delay = time.Millisecond
	obs := &recordingObserver{}

	sup, err := New(src, proc,
		WithPollers(2),
		WithProcessors(3),
		WithQueueCapacity(4),
		WithShutdownTimeout(5*time.Second),
		WithObserver(obs),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := sup.Run(context.Background())

	if !errors.Is(err, errCreds) {
		t.Fatalf("Run error = %v, want %v", err, errCreds)
	}
	if errors.Is(err, ErrShutdownTimeout) {
		t.Error("did not expect a shutdown timeout")
	}
	if report.State != StateDrained || sup.State() != StateDrained {
		t.Errorf("state = %s (supervisor %s), want drained", report.State, sup.State())
	}
	if !errors.Is(report.Cause, errCreds) || KindOf(report.Cause) != KindFatal {
		t.Errorf("cause = %v, want fatal %v", report.Cause, errCreds)
	}
	if report.QueueErr != nil {
		t.Errorf("queue completed with %v, want clean completion", report.QueueErr)
	}
	if report.Enqueued != 10 || report.Processed != 10 {
		t.Errorf("enqueued=%d processed=%d, want 10 each", report.Enqueued, report.Processed)
	}

	var fatalWorkers int
	for _, p := range report.Pollers {
		if !p.Exited {
			t.Errorf("poller %d still running after drain", p.ID)
		}
		if errors.Is(p.Err, errCreds) {
			fatalWorkers++
		}
	}
	if fatalWorkers != 1 {
		t.Errorf("%d pollers recorded the fatal error, want 1", fatalWorkers)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.fatal != 1 {
		t.Errorf("fatal events = %d, want 1", obs.fatal)
	}
	if len(obs.stopping) != 1 || !errors.Is(obs.stopping[0], errCreds) {
		t.Errorf("stopping events = %v, want one carrying %v", obs.stopping, errCreds)
	}
}

func TestSupervisor_ShutdownTimeout(t *testing.T) {
	var next atomic.Int64
	src := SourceFunc(func(ctx context.Context) (Batch, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return makeBatch(int(next.Add(1)), 1), nil
	})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, item Item) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	sup, err := New(src, proc,
		WithProcessors(1),
		WithQueueCapacity(4),
		WithShutdownTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, sup)

	<-started
	waitFor(t, 5*time.Second, func() bool { return sup.queue.Len() == 4 }, "queue to fill")
	cancel()

	res := awaitRun(t, done, 5*time.Second)
	close(release)

	if !errors.Is(res.err, ErrShutdownTimeout) {
		t.Fatalf("Run error = %v, want ErrShutdownTimeout", res.err)
	}
	if res.report.State != StateTimedOut || sup.State() != StateTimedOut {
		t.Errorf("state = %s, want timed-out", res.report.State)
	}
	if res.report.Cause != nil {
		t.Errorf("cause = %v, want nil for an external shutdown", res.report.Cause)
	}
	if res.report.Unprocessed() == 0 {
		t.Errorf("expected unprocessed items at timeout, report = %+v", res.report)
	}

	// Processors carry on in the background and still drain everything.
	select {
	case <-sup.processors.done:
	case <-time.After(5 * time.Second):
		t.Fatal("processors did not drain after release")
	}
	pushed, popped := sup.queue.Counts()
	processed, _ := sumStats(sup.processors.stats())
	if pushed != popped || processed != pushed {
		t.Errorf("pushed=%d popped=%d processed=%d after drain", pushed, popped, processed)
	}
}

func TestSupervisor_StopDrainsBufferedItems(t *testing.T) {
	var next atomic.Int64
	src := SourceFunc(func(ctx context.Context) (Batch, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return makeBatch(int(next.Add(2)), 2), nil
	})

	proc := newRecordingProcessor()
	proc.delay = 100 * time.Microsecond

	sup, err := New(src, proc,
		WithPollers(2),
		WithProcessors(2),
		WithQueueCapacity(8),
		WithShutdownTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := runAsync(context.Background(), sup)
	waitFor(t, 5*time.Second, func() bool { return len(proc.counts()) >= 20 }, "items to be processed")
	sup.Stop()
	sup.Stop()

	res := awaitRun(t, done, 5*time.Second)
	if res.err != nil {
		t.Fatalf("Run error = %v, want nil", res.err)
	}
	if res.report.State != StateDrained {
		t.Errorf("state = %s, want drained", res.report.State)
	}
	if res.report.Processed != res.report.Enqueued {
		t.Errorf("processed=%d enqueued=%d", res.report.Processed, res.report.Enqueued)
	}
}

func TestSupervisor_TransientErrorsAreRetried(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "immediate retry"},
		{name: "exponential backoff", opts: []Option{WithPollBackoff(BackoffExponential, time.Millisecond, 4*time.Millisecond)}},
		{name: "jittered backoff", opts: []Option{WithPollBackoff(BackoffJittered, time.Millisecond, 4*time.Millisecond), WithBackoffSeed(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{fn: func(ctx context.Context, call int) (Batch, error) {
				switch {
				case call <= 3:
					return nil, Transient(errors.New("throttled"))
				case call == 4:
					return makeBatch(0, 3), nil
				default:
					return nil, ErrSourceExhausted
				}
			}}
			proc := newRecordingProcessor()
			obs := &recordingObserver{}

			opts := append([]Option{WithObserver(obs), WithShutdownTimeout(5 * time.Second)}, tt.opts...)
			sup, err := New(src, proc, opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			report, err := sup.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Processed != 3 {
				t.Errorf("processed = %d, want 3", report.Processed)
			}
			if report.Pollers[0].Failed != 3 || report.Pollers[0].Err != nil {
				t.Errorf("poller stats = %+v, want 3 failures and a clean exit", report.Pollers[0])
			}

			obs.mu.Lock()
			defer obs.mu.Unlock()
			if obs.transient != 3 {
				t.Errorf("transient events = %d, want 3", obs.transient)
			}
		})
	}
}

func TestSupervisor_UnexpectedErrorCompletesQueueWithError(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedSource{fn: func(ctx context.Context, call int) (Batch, error) {
		if call == 1 {
			return makeBatch(0, 2), nil
		}
		return nil, boom
	}}
	proc := newRecordingProcessor()

	sup, err := New(src, proc,
		WithPollers(2),
		WithProcessors(2),
		WithShutdownTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := sup.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if !errors.Is(report.QueueErr, boom) {
		t.Errorf("queue error = %v, want %v", report.QueueErr, boom)
	}
	if report.State != StateDrained {
		t.Errorf("state = %s, want drained", report.State)
	}
	// Items enqueued before the failure are still delivered.
	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	for _, p := range report.Processors {
		if !errors.Is(p.Err, boom) {
			t.Errorf("processor %d exit error = %v, want %v", p.ID, p.Err, boom)
		}
	}
}

func TestSupervisor_ProcessingFailuresAreIsolated(t *testing.T) {
	proc := newRecordingProcessor()
	proc.fail = func(item Item) error {
		switch item.ID {
		case "item-3":
			panic("bad payload")
		case "item-5", "item-8":
			return errors.New("rejected")
		}
		return nil
	}
	obs := &recordingObserver{}

	sup, err := New(countedSource(10, 4), proc,
		WithProcessors(3),
		WithObserver(obs),
		WithShutdownTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 7 || report.Failed != 3 {
		t.Errorf("processed=%d failed=%d, want 7 and 3", report.Processed, report.Failed)
	}
	if report.Unprocessed() != 0 {
		t.Errorf("unprocessed = %d, want 0", report.Unprocessed())
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.failed != 3 || obs.processed != 7 {
		t.Errorf("observer failed=%d processed=%d", obs.failed, obs.processed)
	}
}

func TestProcessorPool_RecoversPanics(t *testing.T) {
	p := &processorPool{processor: ProcessorFunc(func(context.Context, Item) error {
		panic("kaboom")
	})}

	err := p.processWithRecovery(context.Background(), 2, Item{ID: "x"})
	if err == nil {
		t.Fatal("expected error from panicking processor")
	}
	if !strings.Contains(err.Error(), "processor 2 panic: kaboom") || !strings.Contains(err.Error(), "stack trace") {
		t.Errorf("unexpected panic error: %v", err)
	}
}

func TestSupervisor_RateLimitedRunEndsAtDeadline(t *testing.T) {
	var next atomic.Int64
	src := SourceFunc(func(ctx context.Context) (Batch, error) {
		return makeBatch(int(next.Add(1))-1, 1), nil
	})
	proc := newRecordingProcessor()

	sup, err := New(src, proc, WithPollRateLimit(1, 1), WithShutdownTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res := awaitRun(t, runAsync(ctx, sup), 5*time.Second)
	if res.err != nil {
		t.Fatalf("Run error = %v, want nil", res.err)
	}
	if res.report.State != StateDrained {
		t.Errorf("state = %s, want drained", res.report.State)
	}
	if res.report.QueueErr != nil {
		t.Errorf("queue error = %v, want nil", res.report.QueueErr)
	}
	if res.report.Elapsed < 250*time.Millisecond {
		t.Errorf("elapsed = %v, intake stopped before the deadline", res.report.Elapsed)
	}
	if res.report.Enqueued != 1 || res.report.Processed != 1 {
		t.Errorf("enqueued=%d processed=%d, want 1 and 1", res.report.Enqueued, res.report.Processed)
	}
}

type panickyObserver struct{ NopObserver }

func (panickyObserver) ItemProcessed(string, int) { panic("observer exploded") }

func TestSupervisor_ObserverPanicDoesNotKillProcessors(t *testing.T) {
	proc := newRecordingProcessor()
	sup, err := New(countedSource(20, 2), proc,
		WithProcessors(2),
		WithQueueCapacity(4),
		WithObserver(panickyObserver{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := awaitRun(t, runAsync(context.Background(), sup), 5*time.Second)
	if res.err != nil {
		t.Fatalf("Run error = %v, want nil", res.err)
	}
	if res.report.State != StateDrained {
		t.Errorf("state = %s, want drained", res.report.State)
	}
	if got := len(proc.counts()); got != 20 {
		t.Errorf("processed %d distinct items, want 20", got)
	}
	if res.report.Processed != 20 {
		t.Errorf("report processed = %d, want 20", res.report.Processed)
	}
}
