package graph

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy indicates a RetryPolicy that fails validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy configures automatic retries of model requests.
//
// Tool calls are never retried here: their failures are reported to the
// model, which decides what to do. Model requests fail the node when they
// error, so transient provider errors (rate limits, 5xx) are worth retrying.
//
// Example:
//
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithModelRetry(graph.RetryPolicy{
//	    MaxAttempts: 3,
//	    BaseDelay:   500 * time.Millisecond,
//	    MaxDelay:    5 * time.Second,
//	    Retryable:   func(err error) bool { return !errors.Is(err, context.Canceled) },
//	}))
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	// The actual delay is min(BaseDelay * 2^attempt, MaxDelay) plus jitter.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Must be >= BaseDelay when both are set.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// If nil, all errors are considered non-retryable.
	Retryable func(error) bool
}

// Validate checks the policy's invariants.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. A nil policy runs fn once.
func (rp *RetryPolicy) do(ctx context.Context, fn func() error) error {
	if rp == nil {
		return fn()
	}
	var err error
	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if rp.Retryable == nil || !rp.Retryable(err) || attempt == rp.MaxAttempts-1 {
			return err
		}
		delay := computeBackoff(attempt, rp.BaseDelay, rp.MaxDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// computeBackoff returns base * 2^attempt capped at maxDelay, plus up to
// base of random jitter.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	limit := maxDelay
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64) - base
	}
	// Shift only while the result stays within limit; large attempts would overflow.
	delay := limit
	if attempt < 0 {
		attempt = 0
	}
	if attempt < 63 && base <= limit>>uint(attempt) {
		delay = base << uint(attempt)
	}
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	return delay + jitter
}
