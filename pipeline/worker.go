package pipeline

import (
	"sync/atomic"
)

// Role tells poller and processor workers apart in reports.
type Role string

const (
	RolePoller    Role = "poller"
	RoleProcessor Role = "processor"
)

// WorkerStats is a point-in-time snapshot of one worker.
type WorkerStats struct {
	Role Role
	ID   int
	// Handled counts items pushed (pollers) or processed successfully
	// (processors).
	Handled uint64
	// Failed counts poll errors (pollers) or processing errors (processors).
	Failed uint64
	Exited bool
	// Err is the reason the worker stopped, nil for a clean exit.
	Err error
}

type exitState struct {
	err error
}

// workerHandle is owned by its pool. Only the owning goroutine writes the
// counters; snapshot may be called from anywhere.
type workerHandle struct {
	role    Role
	id      int
	handled atomic.Uint64
	failed  atomic.Uint64
	exit    atomic.Pointer[exitState]
}

func newWorkerHandles(role Role, n int) []*workerHandle {
	handles := make([]*workerHandle, n)
	for i := range handles {
		handles[i] = &workerHandle{role: role, id: i}
	}
	return handles
}

func (w *workerHandle) finish(err error) {
	w.exit.Store(&exitState{err: err})
}

func (w *workerHandle) snapshot() WorkerStats {
	s := WorkerStats{
		Role:    w.role,
		ID:      w.id,
		Handled: w.handled.Load(),
		Failed:  w.failed.Load(),
	}
	if ex := w.exit.Load(); ex != nil {
		s.Exited = true
		s.Err = ex.err
	}
	return s
}

func snapshotAll(handles []*workerHandle) []WorkerStats {
	stats := make([]WorkerStats, len(handles))
	for i, h := range handles {
		stats[i] = h.snapshot()
	}
	return stats
}

func sumStats(stats []WorkerStats) (handled, failed uint64) {
	for _, s := range stats {
		handled += s.Handled
		failed += s.Failed
	}
	return handled, failed
}
