// Package simulated provides a fake batch source for demos and load tests.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/utkarsh5026/pollpipe/pipeline"
)

var (
	// ErrThrottled is the cause of the simulated transient errors.
	ErrThrottled = errors.New("simulated source throttled the request")
	// ErrCredentialsRevoked is the cause of the simulated fatal errors.
	ErrCredentialsRevoked = errors.New("simulated source revoked credentials")
)

// Config controls the behaviour of a Source.
type Config struct {
	// MaxBatch is the largest batch returned by a single poll; batch sizes
	// are uniform in [1, MaxBatch].
	MaxBatch int
	// Latency is the mean duration of a poll. Actual latency is uniform in
	// [Latency/2, 3*Latency/2).
	Latency time.Duration
	// TransientRate and FatalRate are per-poll error probabilities.
	TransientRate float64
	FatalRate     float64
	// Limit stops the source after that many items. Zero means unlimited.
	Limit int
}

// Source is a pipeline.Source producing random batches of items with
// random UUIDs and payloads. It is safe for concurrent use.
type Source struct {
	cfg Config

	mu       sync.Mutex
	rng      *rand.Rand
	produced int
	polls    int
}

var _ pipeline.Source = (*Source)(nil)

// New creates a Source. All randomness, item ids included, comes from rng,
// so two sources with identically seeded rngs behave the same when polled
// sequentially.
func New(cfg Config, rng *rand.Rand) *Source {
	if cfg.MaxBatch < 1 {
		cfg.MaxBatch = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- simulation only
	}
	return &Source{cfg: cfg, rng: rng}
}

// Poll waits for the simulated latency, then returns a batch or an error.
func (s *Source) Poll(ctx context.Context) (pipeline.Batch, error) {
	if err := wait(ctx, s.latency()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++

	if s.cfg.Limit > 0 && s.produced >= s.cfg.Limit {
		return nil, pipeline.ErrSourceExhausted
	}

	roll := s.rng.Float64()
	switch {
	case roll < s.cfg.FatalRate:
		return nil, pipeline.Fatal(ErrCredentialsRevoked)
	case roll < s.cfg.FatalRate+s.cfg.TransientRate:
		return nil, pipeline.Transient(ErrThrottled)
	}

	n := 1 + s.rng.Intn(s.cfg.MaxBatch)
	if s.cfg.Limit > 0 {
		n = min(n, s.cfg.Limit-s.produced)
	}

	batch := make(pipeline.Batch, 0, n)
	for range n {
		id, err := uuid.NewRandomFromReader(s.rng)
		if err != nil {
			return batch, pipeline.Transient(fmt.Errorf("generate item id: %w", err))
		}
		batch = append(batch, pipeline.Item{
			ID:      id.String(),
			Payload: []byte(fmt.Sprintf("payload-%d", s.produced)),
		})
		s.produced++
	}
	return batch, nil
}

// Produced returns the number of items handed out so far.
func (s *Source) Produced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}

// Polls returns the number of completed polls.
func (s *Source) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Source) latency() time.Duration {
	if s.cfg.Latency <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Latency/2 + time.Duration(s.rng.Int63n(int64(s.cfg.Latency)))
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
