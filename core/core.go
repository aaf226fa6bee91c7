// Package core provides the transport-agnostic authentication and retry engine
// shared by the HTTP client and the gRPC interceptors.
//
// The Coordinator type guarantees that only one refresh call is in flight per
// client instance; callers arriving while a refresh is underway wait for its
// outcome instead of issuing their own.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RefreshFunc exchanges a refresh token for a new access token.
// Implementations must issue a bare call that never re-enters the request
// pipeline, otherwise a failing refresh would recursively trigger itself.
type RefreshFunc func(ctx context.Context, refreshToken string) (Token, error)

// CommitFunc stores a refreshed token. generation is the value reported by
// the generation func when the refresh started. A returned error fails the
// refresh for the leader and every waiter.
type CommitFunc func(ctx context.Context, generation uint64, tok Token) error

// Logger defines an optional logging interface for the core engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	// ErrEmptyAccessToken is returned when a refresh succeeds without a token.
	ErrEmptyAccessToken = errors.New("refresh returned an empty access token")

	// ErrRefreshPanicked is delivered to waiters when the refresh func panics.
	ErrRefreshPanicked = errors.New("refresh panicked")

	// ErrSessionChanged is returned when the credentials were replaced or
	// cleared while a refresh was in flight. The refreshed token is discarded.
	ErrSessionChanged = errors.New("credentials changed during refresh")
)

type refreshResult struct {
	token Token
	err   error
}

// Coordinator serialises token refreshes. It is safe for concurrent use.
type Coordinator struct {
	refresh    RefreshFunc
	commit     CommitFunc
	generation func() uint64
	timeout    time.Duration
	logger     Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult

	calls atomic.Int64
}

// Refresh obtains a new access token.
//
// If no refresh is in progress the caller becomes the leader: it performs the
// refresh call, commits the token, then resolves every waiter in the order it
// was enqueued. If a refresh is already in progress the caller is appended to
// the waiters queue and blocks until that refresh completes or ctx is done.
// A waiter giving up never cancels the shared refresh.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		depth := len(c.waiters)
		c.mu.Unlock()

		if c.logger != nil {
			c.logger.Debug("joined in-flight token refresh", "waiters", depth)
		}

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	return c.lead(ctx, refreshToken)
}

// lead runs the refresh call. The refreshing flag is released and the queue
// drained in the same critical section on every exit path, so no waiter is
// left behind and the next refresh starts with an empty queue.
func (c *Coordinator) lead(ctx context.Context, refreshToken string) (tok Token, err error) {
	start := time.Now()
	c.calls.Add(1)

	defer func() {
		r := recover()
		if r != nil {
			tok, err = Token{}, fmt.Errorf("%w: %v", ErrRefreshPanicked, r)
		}

		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		c.refreshing = false
		c.mu.Unlock()

		for _, w := range waiters {
			w <- refreshResult{token: tok, err: err}
		}

		if c.logger != nil {
			if err != nil {
				c.logger.Warn("token refresh failed",
					"error", err, "waiters", len(waiters), "duration", time.Since(start))
			} else {
				c.logger.Info("token refreshed",
					"waiters", len(waiters), "duration", time.Since(start))
			}
		}

		if r != nil {
			panic(r)
		}
	}()

	if c.logger != nil {
		c.logger.Debug("starting token refresh")
	}

	var generation uint64
	if c.generation != nil {
		generation = c.generation()
	}

	// The refresh is shared by every waiter, so it must outlive the leader's
	// own cancellation and is bounded only by the refresh timeout.
	base := context.WithoutCancel(ctx)
	refreshCtx, cancel := context.WithTimeout(base, c.timeout)
	defer cancel()

	tok, err = c.refresh(refreshCtx, refreshToken)
	if err == nil && tok.AccessToken == "" {
		err = ErrEmptyAccessToken
	}
	if err != nil {
		return Token{}, err
	}

	if c.commit != nil {
		if err := c.commit(base, generation, tok); err != nil {
			return Token{}, err
		}
	}

	return tok, nil
}

// Refreshing reports whether a refresh call is currently in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Waiting returns the number of callers queued behind the in-flight refresh.
func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Calls returns how many refresh calls this coordinator has issued.
func (c *Coordinator) Calls() int64 {
	return c.calls.Load()
}
