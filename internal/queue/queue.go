// Package queue provides the bounded multi-producer multi-consumer buffer
// that connects pollers to processors.
//
// A Queue has a fixed capacity: producers block while it is full, consumers
// block while it is empty. Completion is one-shot and may carry an error
// cause. Values buffered before completion are still handed out to
// consumers; the terminal error is reported only once the buffer is empty.
package queue

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Push and PushAll once the queue has been
	// completed, and by Pop when a cleanly completed queue is drained.
	ErrClosed = errors.New("queue is closed")

	// ErrInvalidCapacity is returned by New for capacities below one.
	ErrInvalidCapacity = errors.New("queue capacity must be at least 1")
)

// State is the completion state of a Queue.
type State int

const (
	// Open accepts pushes.
	Open State = iota
	// CompletedOK was completed without a cause.
	CompletedOK
	// CompletedErr was completed with a cause.
	CompletedErr
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case CompletedOK:
		return "completed"
	case CompletedErr:
		return "completed-with-error"
	default:
		return "unknown"
	}
}

// Queue is a fixed-capacity FIFO safe for concurrent producers and
// consumers. All state lives behind a single mutex, so every operation is
// linearizable with respect to completion.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    ring[T]
	state  State
	cause  error
	pushed uint64
	popped uint64

	// done is closed exactly once, by the call to Complete that wins.
	done chan struct{}
}

// New creates a queue that holds at most capacity values.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	q := &Queue[T]{
		buf:  newRing[T](capacity),
		done: make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Push appends v, blocking while the queue is full and still open.
// It returns ErrClosed, without enqueueing v, if the queue is completed
// before space becomes available.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pushLocked(v)
}

// PushAll pushes vs in order, one value at a time, so consumers can make
// progress while a large slice is being delivered. It stops at the first
// value rejected because the queue was completed and returns the number of
// values accepted; vs[n:] remain the caller's responsibility.
func (q *Queue[T]) PushAll(vs []T) (int, error) {
	for i, v := range vs {
		if err := q.Push(v); err != nil {
			debugLog("push-all interrupted: accepted=%d rejected=%d", i, len(vs)-i)
			return i, err
		}
	}
	return len(vs), nil
}

func (q *Queue[T]) pushLocked(v T) error {
	for q.state == Open && q.buf.full() {
		q.notFull.Wait()
	}

	if q.state != Open {
		return ErrClosed
	}

	q.buf.write(v)
	q.pushed++
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest value, blocking while the queue is
// empty and still open. Values buffered before completion are returned as
// usual. Once the queue is completed and empty, Pop returns the terminal
// error: ErrClosed for a clean completion, otherwise the completion cause.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.state == Open && q.buf.empty() {
		q.notEmpty.Wait()
	}

	if v, ok := q.buf.read(); ok {
		q.popped++
		q.notFull.Signal()
		return v, nil
	}

	var zero T
	return zero, q.terminalErrLocked()
}

// TryPop returns the oldest value without blocking. ok is false when the
// queue is currently empty; err is the terminal error once the queue is
// completed and drained.
func (q *Queue[T]) TryPop() (v T, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if v, ok = q.buf.read(); ok {
		q.popped++
		q.notFull.Signal()
		return v, true, nil
	}

	if q.state != Open {
		err = q.terminalErrLocked()
	}
	return v, false, err
}

func (q *Queue[T]) terminalErrLocked() error {
	if q.cause != nil {
		return q.cause
	}
	return ErrClosed
}

// Complete transitions an open queue to CompletedOK (nil cause) or
// CompletedErr. It reports whether this call performed the transition;
// later calls change neither the state nor the stored cause.
//
// Blocked producers are released with ErrClosed. Blocked consumers keep
// draining buffered values before they observe the terminal error.
func (q *Queue[T]) Complete(cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != Open {
		debugLog("complete ignored: state=%s", q.state)
		return false
	}

	if cause != nil {
		q.state = CompletedErr
		q.cause = cause
	} else {
		q.state = CompletedOK
	}
	debugLog("completed: state=%s buffered=%d", q.state, q.buf.len())

	close(q.done)
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	return true
}

// Done returns a channel that is closed when the queue is completed.
// Buffered values may still be waiting to be popped at that point.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// State returns the current completion state.
func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Err returns the completion cause, or nil if the queue is open or was
// completed cleanly. Unlike Pop it does not wait for the buffer to drain.
func (q *Queue[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cause
}

// Len returns the number of buffered values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.len()
}

// Cap returns the fixed capacity of the queue.
func (q *Queue[T]) Cap() int {
	return q.buf.cap()
}

// Counts returns the total number of values ever accepted and ever
// removed. pushed-popped always equals Len.
func (q *Queue[T]) Counts() (pushed, popped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.popped
}
