// Package redislist implements a pipeline.Source that consumes a redis list.
//
// Producers RPUSH payloads onto the list. Each poll atomically takes up to
// BatchSize entries from the head of the list with MULTI/LRANGE/LTRIM/EXEC,
// so entries are handed to exactly one poller.
//
// Delivery is at most once. An error reported before EXEC runs leaves the
// list untouched, but a connection lost after the server executed the
// transaction trims entries that never reach the pipeline. Producers that
// need at-least-once delivery must track outstanding work themselves.
package redislist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/utkarsh5026/pollpipe/pipeline"
)

// Config holds the redis list source configuration.
type Config struct {
	Key          string
	BatchSize    int
	PollInterval time.Duration // wait after an empty poll
}

// Source pops batches from a redis list.
type Source struct {
	db  *redis.Client
	cfg Config
}

var _ pipeline.Source = (*Source)(nil)

// New creates a Source reading from cfg.Key through db.
func New(db *redis.Client, cfg Config) (*Source, error) {
	if db == nil {
		return nil, errors.New("redislist: nil client")
	}
	if cfg.Key == "" {
		return nil, errors.New("redislist: empty key")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Source{db: db, cfg: cfg}, nil
}

// Poll takes up to BatchSize entries off the list. When the list is empty
// it waits PollInterval, or until ctx is cancelled, and returns an empty
// batch. See the package documentation for the delivery guarantee.
func (s *Source) Poll(ctx context.Context) (pipeline.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pipe := s.db.WithContext(ctx).TxPipeline()
	rangeCmd := pipe.LRange(s.cfg.Key, 0, int64(s.cfg.BatchSize)-1)
	pipe.LTrim(s.cfg.Key, int64(s.cfg.BatchSize), -1)

	if _, err := pipe.Exec(); err != nil && err != redis.Nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(err)
	}

	entries, err := rangeCmd.Result()
	if err != nil && err != redis.Nil {
		return nil, classify(err)
	}

	if len(entries) == 0 {
		if !sleep(ctx, s.cfg.PollInterval) {
			return nil, ctx.Err()
		}
		return nil, nil
	}

	batch := make(pipeline.Batch, len(entries))
	for i, e := range entries {
		batch[i] = pipeline.Item{ID: uuid.NewString(), Payload: []byte(e)}
	}
	return batch, nil
}

// Push appends payloads to the tail of the list.
func (s *Source) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	return s.db.WithContext(ctx).RPush(s.cfg.Key, values...).Err()
}

// Len returns the number of entries waiting in the list.
func (s *Source) Len(ctx context.Context) (int64, error) {
	return s.db.WithContext(ctx).LLen(s.cfg.Key).Result()
}

// classify marks authentication and permission failures as fatal; they
// will not fix themselves by retrying. Everything else, connection errors
// included, is transient.
func classify(err error) error {
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "NOPERM", "ERR invalid password"} {
		if strings.HasPrefix(msg, prefix) {
			return pipeline.Fatal(fmt.Errorf("redis: %w", err))
		}
	}
	return pipeline.Transient(fmt.Errorf("redis: %w", err))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
