package pipeline

import (
	"runtime"
	"time"

	"github.com/utkarsh5026/pollpipe/internal/algorithms"
	"golang.org/x/time/rate"
)

// BackoffType selects the delay a poller waits after a transient source
// error before polling again.
type BackoffType = algorithms.BackoffType

const (
	// BackoffNone retries immediately (default).
	BackoffNone = algorithms.BackoffNone
	// BackoffExponential doubles the delay after each consecutive failure.
	BackoffExponential = algorithms.BackoffExponential
	// BackoffJittered adds random jitter to the exponential delay.
	BackoffJittered = algorithms.BackoffJittered
	// BackoffDecorrelated uses AWS-style decorrelated jitter.
	BackoffDecorrelated = algorithms.BackoffDecorrelated
)

// ParseBackoffType maps a configuration name ("none", "exponential",
// "jittered", "decorrelated") to a BackoffType.
func ParseBackoffType(name string) (BackoffType, error) {
	return algorithms.ParseBackoffType(name)
}

const (
	defaultQueueCapacity   = 64
	defaultPollers         = 1
	defaultShutdownTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Supervisor.
type Option func(*config)

type config struct {
	queueCapacity   int
	pollers         int
	processors      int
	shutdownTimeout time.Duration
	observer        Observer

	pollRate  rate.Limit
	pollBurst int

	backoffType         BackoffType
	backoffInitialDelay time.Duration
	backoffMaxDelay     time.Duration
	backoffSeed         int64
	backoffSeedSet      bool

	pinProcessors bool
}

// WithQueueCapacity sets the capacity of the bounded queue between pollers
// and processors. Pollers block once it is full.
// If not specified, defaults to 64.
func WithQueueCapacity(capacity int) Option {
	return func(cfg *config) {
		if capacity > 0 {
			cfg.queueCapacity = capacity
		}
	}
}

// WithPollers sets the number of concurrent poller workers.
// If not specified, defaults to 1.
func WithPollers(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.pollers = count
		}
	}
}

// WithProcessors sets the number of concurrent processor workers.
// If not specified, defaults to runtime.GOMAXPROCS(0).
func WithProcessors(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.processors = count
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for processors to drain
// the queue once stopping has begun. If not specified, defaults to 30s.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.shutdownTimeout = timeout
		}
	}
}

// WithObserver sets the observer that receives pipeline events.
// Use MultiObserver to attach more than one.
func WithObserver(o Observer) Option {
	return func(cfg *config) {
		if o != nil {
			cfg.observer = o
		}
	}
}

// WithPollRateLimit caps how often Source.Poll is called, across all
// pollers. pollsPerSecond is the sustained rate and burst the number of
// polls allowed at once.
//
// Example:
//
//	WithPollRateLimit(10, 2) // at most 10 polls/sec, 2 at a time
func WithPollRateLimit(pollsPerSecond float64, burst int) Option {
	return func(cfg *config) {
		if pollsPerSecond > 0 && burst > 0 {
			cfg.pollRate = rate.Limit(pollsPerSecond)
			cfg.pollBurst = burst
		}
	}
}

// WithPollBackoff makes pollers wait between consecutive transient errors
// instead of retrying immediately. The delay resets after the first
// successful poll.
func WithPollBackoff(backoffType BackoffType, initialDelay, maxDelay time.Duration) Option {
	return func(cfg *config) {
		if initialDelay > 0 {
			cfg.backoffType = backoffType
			cfg.backoffInitialDelay = initialDelay
			cfg.backoffMaxDelay = maxDelay
		}
	}
}

// WithBackoffSeed seeds the random source of the jittered and decorrelated
// backoffs, making poller delays reproducible in tests.
func WithBackoffSeed(seed int64) Option {
	return func(cfg *config) {
		cfg.backoffSeed = seed
		cfg.backoffSeedSet = true
	}
}

// WithProcessorAffinity pins each processor worker to a CPU core
// (round-robin). Pinning is best effort: on platforms without affinity
// support the worker is only locked to its OS thread.
func WithProcessorAffinity(enabled bool) Option {
	return func(cfg *config) {
		cfg.pinProcessors = enabled
	}
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		queueCapacity:   defaultQueueCapacity,
		pollers:         defaultPollers,
		processors:      runtime.GOMAXPROCS(0),
		shutdownTimeout: defaultShutdownTimeout,
		observer:        NopObserver{},
		backoffType:     BackoffNone,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) newLimiter() *rate.Limiter {
	if c.pollRate <= 0 {
		return nil
	}
	return rate.NewLimiter(c.pollRate, c.pollBurst)
}
