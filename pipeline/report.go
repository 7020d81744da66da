package pipeline

import "time"

// State is the lifecycle state of a Supervisor.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateDrained
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDrained:
		return "drained"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateDrained || s == StateTimedOut
}

// Report summarises one Run of a Supervisor. Counts are taken at the moment
// Run returns; after a timeout, processors may still be finishing in the
// background.
type Report struct {
	State State
	// Cause is why the pipeline stopped: nil for an external shutdown or a
	// source that ran dry, the fatal source error otherwise.
	Cause error
	// QueueErr is the error the queue was completed with, if any.
	QueueErr error

	Enqueued  uint64
	Processed uint64
	Failed    uint64
	// Remaining is the number of items still buffered in the queue.
	Remaining int

	Pollers    []WorkerStats
	Processors []WorkerStats
	Elapsed    time.Duration
}

// Unprocessed is the number of enqueued items not yet handled by a
// processor, successfully or not.
func (r Report) Unprocessed() uint64 {
	handled := r.Processed + r.Failed
	if handled >= r.Enqueued {
		return 0
	}
	return r.Enqueued - handled
}
