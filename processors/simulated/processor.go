// Package simulated provides a processor that pretends to do work.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/pollpipe/pipeline"
)

// ErrProcessing is wrapped by every simulated processing failure.
var ErrProcessing = errors.New("simulated processing failure")

// Config controls the behaviour of a Processor.
type Config struct {
	// Latency is how long each item takes to process.
	Latency time.Duration
	// FailureRate is the probability that an item fails.
	FailureRate float64
}

// Processor simulates work on each item. It is safe for concurrent use.
type Processor struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand

	processed atomic.Uint64
	failed    atomic.Uint64
}

var _ pipeline.Processor = (*Processor)(nil)

// New creates a Processor drawing its failures from rng.
func New(cfg Config, rng *rand.Rand) *Processor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- simulation only
	}
	return &Processor{cfg: cfg, rng: rng}
}

// Process sleeps for the configured latency and then fails with
// probability FailureRate.
func (p *Processor) Process(ctx context.Context, item pipeline.Item) error {
	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			p.failed.Add(1)
			return ctx.Err()
		}
	}

	if p.roll() < p.cfg.FailureRate {
		p.failed.Add(1)
		return fmt.Errorf("%w: item %s", ErrProcessing, item.ID)
	}
	p.processed.Add(1)
	return nil
}

func (p *Processor) roll() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// Processed returns the number of items processed successfully.
func (p *Processor) Processed() uint64 { return p.processed.Load() }

// Failed returns the number of items that failed.
func (p *Processor) Failed() uint64 { return p.failed.Load() }
