package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedSource struct {
	calls atomic.Int64
	fn    func(ctx context.Context, call int) (Batch, error)
}

func (s *scriptedSource) Poll(ctx context.Context) (Batch, error) {
	return s.fn(ctx, int(s.calls.Add(1)))
}

func makeBatch(start, n int) Batch {
	b := make(Batch, n)
	for i := range b {
		id := fmt.Sprintf("item-%d", start+i)
		b[i] = Item{ID: id, Payload: []byte(id)}
	}
	return b
}

// countedSource hands out total items in batches of batchSize, then reports
// ErrSourceExhausted to every poller.
func countedSource(total, batchSize int) Source {
	var next atomic.Int64
	return SourceFunc(func(ctx context.Context) (Batch, error) {
		start := int(next.Add(int64(batchSize))) - batchSize
		if start >= total {
			return nil, ErrSourceExhausted
		}
		return makeBatch(start, min(batchSize, total-start)), nil
	})
}

// blockUntilCancelled is a Poll body for a source with nothing left to give.
func blockUntilCancelled(ctx context.Context) (Batch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingProcessor struct {
	mu    sync.Mutex
	seen  map[string]int
	delay time.Duration
	fail  func(Item) error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: make(map[string]int)}
}

func (p *recordingProcessor) Process(_ context.Context, item Item) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.seen[item.ID]++
	p.mu.Unlock()

	if p.fail != nil {
		return p.fail(item)
	}
	return nil
}

func (p *recordingProcessor) counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.seen))
	for k, v := range p.seen {
		out[k] = v
	}
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	enqueued  int
	processed int
	failed    int
	transient int
	fatal     int
	stopping  []error
	stopped   []Report
}

func (o *recordingObserver) ItemEnqueued(string) {
	o.mu.Lock()
	o.enqueued++
	o.mu.Unlock()
}

func (o *recordingObserver) ItemProcessed(string, int) {
	o.mu.Lock()
	o.processed++
	o.mu.Unlock()
}

func (o *recordingObserver) ProcessingFailed(string, int, error) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func (o *recordingObserver) TransientSourceError(int, error) {
	o.mu.Lock()
	o.transient++
	o.mu.Unlock()
}

func (o *recordingObserver) FatalSourceError(int, error) {
	o.mu.Lock()
	o.fatal++
	o.mu.Unlock()
}

func (o *recordingObserver) PipelineStopping(cause error) {
	o.mu.Lock()
	o.stopping = append(o.stopping, cause)
	o.mu.Unlock()
}

func (o *recordingObserver) PipelineStopped(r Report) {
	o.mu.Lock()
	o.stopped = append(o.stopped, r)
	o.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type runResult struct {
	report Report
	err    error
}

func runAsync(ctx context.Context, s *Supervisor) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		r, err := s.Run(ctx)
		ch <- runResult{report: r, err: err}
	}()
	return ch
}

func awaitRun(t *testing.T, ch <-chan runResult, timeout time.Duration) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(timeout):
		t.Fatalf("Run did not return within %v", timeout)
		return runResult{}
	}
}
