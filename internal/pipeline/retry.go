package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/postpack/internal/store"
)

// MaxRetries is the number of store attempts made for one import.
const MaxRetries = 3

// RetryPolicy is exponential backoff with up to 50% jitter.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetry waits 1s, 2s, 4s ... capped at 30s.
var DefaultRetry = RetryPolicy{Attempts: MaxRetries, Base: time.Second, Max: 30 * time.Second}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	return store.IsRetryable(err)
}

// Delay returns the wait before retry number attempt (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base << uint(attempt)
	if d <= 0 || (p.Max > 0 && d > p.Max) {
		d = p.Max
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

// Do calls fn until it succeeds, returns a permanent error, or the attempts
// run out. The last error is returned. A cancelled ctx stops the wait
// between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for attempt := range attempts {
		if err = fn(attempt); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		t := time.NewTimer(p.Delay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return err
}
