package txn

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryDelay computes the pause before retry n (1-indexed). Implementations
// must be safe for concurrent use.
type RetryDelay interface {
	Delay(retry int) time.Duration
}

type noDelay struct{}

func (noDelay) Delay(int) time.Duration { return 0 }

// NoDelay retries immediately.
func NoDelay() RetryDelay { return noDelay{} }

// Jitter is exponential backoff with full jitter: a random duration in
// [0, min(Initial * 2^(retry-1), Max)]. Two transactions that conflicted
// once are unlikely to collide again on the next attempt.
type Jitter struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay implements RetryDelay.
func (j Jitter) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := float64(j.Initial) * math.Pow(2, float64(retry-1))
	if j.Max > 0 && base > float64(j.Max) {
		base = float64(j.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
}

// DefaultRetryDelay is used by executors built without WithRetryDelay.
func DefaultRetryDelay() RetryDelay {
	return Jitter{Initial: 5 * time.Millisecond, Max: 250 * time.Millisecond}
}
