package algorithms

import (
	"math/rand"
	"time"
)

const (
	maxShift = 62 // Prevent overflow in backoff calculation
)

// Backoff computes the delay a poller waits after consecutive transient
// source errors before it polls again.
//
// Implementations are stateful and not safe for concurrent use: every
// poller worker owns its own instance.
type Backoff interface {
	// NextDelay returns the delay before the next poll. failures is the
	// number of consecutive failed polls so far, starting at 1.
	NextDelay(failures int) time.Duration

	// Reset forgets previous failures. Called after a successful poll.
	Reset()
}

// noBackoff retries immediately.
type noBackoff struct{}

func (noBackoff) NextDelay(int) time.Duration { return 0 }
func (noBackoff) Reset() {}

// exponentialBackoff doubles the delay after each failure:
// initial, 2*initial, 4*initial ... capped at maxDelay.
type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

func (eb *exponentialBackoff) NextDelay(failures int) time.Duration {
	return exponentialDelay(failures-1, eb.initialDelay, eb.maxDelay)
}

func (eb *exponentialBackoff) Reset() {}

// jitteredBackoff scales the exponential delay by a random factor in
// [1-jitter, 1+jitter] so that pollers failing together spread out.
type jitteredBackoff struct {
	exponentialBackoff
	jitterFactor float64
	rng          *rand.Rand
}

func (jb *jitteredBackoff) NextDelay(failures int) time.Duration {
	base := jb.exponentialBackoff.NextDelay(failures)
	multiplier := 1.0 + (jb.rng.Float64()*2-1)*jb.jitterFactor
	return clamp(time.Duration(float64(base)*multiplier), 0, jb.maxDelay)
}

// decorrelatedBackoff picks each delay uniformly from
// [initial, 3*previous], capped at maxDelay.
//
// See "Exponential Backoff And Jitter", AWS Architecture Blog (2015).
type decorrelatedBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	prevDelay    time.Duration
	rng          *rand.Rand
}

func (db *decorrelatedBackoff) NextDelay(failures int) time.Duration {
	if failures <= 1 {
		db.prevDelay = db.initialDelay
		return db.initialDelay
	}

	upper := min(db.prevDelay*3, db.maxDelay)
	span := upper - db.initialDelay
	if span <= 0 {
		db.prevDelay = db.initialDelay
		return db.initialDelay
	}

	delay := db.initialDelay + time.Duration(db.rng.Int63n(int64(span)))
	db.prevDelay = delay
	return delay
}

func (db *decorrelatedBackoff) Reset() {
	db.prevDelay = db.initialDelay
}

func exponentialDelay(shift int, initialDelay, maxDelay time.Duration) time.Duration {
	if shift < 0 {
		return 0
	}
	if shift >= maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(shift)) * initialDelay
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[T ~int64 | ~float64](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
