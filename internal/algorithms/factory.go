package algorithms

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// BackoffType defines the poll retry backoff algorithm to use.
type BackoffType int

const (
	// BackoffNone retries immediately (default).
	BackoffNone BackoffType = iota
	// BackoffExponential doubles the delay after each failure.
	BackoffExponential
	// BackoffJittered adds random jitter to prevent thundering herd.
	BackoffJittered
	// BackoffDecorrelated uses AWS-style decorrelated jitter.
	BackoffDecorrelated
)

const defaultJitterFactor = 0.2

// String returns the configuration name of the backoff type
func (t BackoffType) String() string {
	switch t {
	case BackoffNone:
		return "none"
	case BackoffExponential:
		return "exponential"
	case BackoffJittered:
		return "jittered"
	case BackoffDecorrelated:
		return "decorrelated"
	default:
		return "unknown"
	}
}

// ParseBackoffType maps a configuration name to a BackoffType.
// The empty string selects BackoffNone.
func ParseBackoffType(name string) (BackoffType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return BackoffNone, nil
	case "exponential":
		return BackoffExponential, nil
	case "jittered":
		return BackoffJittered, nil
	case "decorrelated":
		return BackoffDecorrelated, nil
	default:
		return BackoffNone, fmt.Errorf("unknown backoff type %q", name)
	}
}

// NewBackoff creates a backoff of the given type. rng is only used by the
// randomized types; it must not be shared with another Backoff.
func NewBackoff(backoffType BackoffType, initialDelay, maxDelay time.Duration, rng *rand.Rand) Backoff {
	if initialDelay <= 0 {
		return noBackoff{}
	}
	maxDelay = max(maxDelay, initialDelay)

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- crypto rand not needed for backoff jitter
	}

	switch backoffType {
	case BackoffExponential:
		return &exponentialBackoff{initialDelay: initialDelay, maxDelay: maxDelay}

	case BackoffJittered:
		return &jitteredBackoff{
			exponentialBackoff: exponentialBackoff{initialDelay: initialDelay, maxDelay: maxDelay},
			jitterFactor:       defaultJitterFactor,
			rng:                rng,
		}

	case BackoffDecorrelated:
		return &decorrelatedBackoff{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			prevDelay:    initialDelay,
			rng:          rng,
		}

	default:
		return noBackoff{}
	}
}
