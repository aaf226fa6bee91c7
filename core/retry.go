package core

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"
)

const maxDelay = time.Duration(math.MaxInt64)

const (
	// DefaultMaxRetries is the default transient-failure retry budget.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default base backoff delay.
	DefaultRetryDelay = 1000 * time.Millisecond
)

// ErrInvalidRetryPolicy is returned when a retry policy has negative values.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy is the bounded exponential backoff applied to transient failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is multiplied by 2^attempt to get the wait before the next attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the policy with the default budget and delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultRetryDelay}
}

// Validate rejects negative budgets and delays.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.Join(ErrInvalidRetryPolicy, errors.New("max retries cannot be negative"))
	}
	if p.BaseDelay < 0 {
		return errors.Join(ErrInvalidRetryPolicy, errors.New("retry delay cannot be negative"))
	}
	return nil
}

// Delay returns the wait between attempt n and n+1. attempt is zero-indexed:
// with a 1s base, attempt 0 waits 1s, attempt 1 waits 2s, attempt 2 waits 4s.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 || p.BaseDelay > maxDelay>>uint(attempt) {
		return maxDelay
	}
	return p.BaseDelay << uint(attempt)
}

// Allows reports whether another retry fits in the budget given the number of
// retries already performed.
func (p RetryPolicy) Allows(retries int) bool {
	return retries < p.MaxRetries
}

// Wait sleeps for the backoff delay of attempt, returning early with ctx.Err()
// when ctx is done first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryableStatus reports whether an HTTP status is transient:
// request timeout, too many requests, or any server error.
func IsRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

// Attempt carries the two independent retry markers of one logical request.
type Attempt struct {
	// AuthRetried is set once the request has been replayed after a refresh.
	AuthRetried bool

	// Retries counts transient-failure replays performed so far.
	Retries int
}
