package core

import (
	"errors"
	"time"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// Option is a function that configures the Coordinator.
// Options return errors to enable validation during construction.
type Option func(*Coordinator) error

// New creates a new Coordinator with the provided options.
//
// The Coordinator must be configured with a refresh function using
// WithRefreshFunc. All other options are optional.
//
// Example:
//
//	coord, err := core.New(
//	    core.WithRefreshFunc(exchange),
//	    core.WithGeneration(creds.Generation),
//	    core.WithCommit(func(ctx context.Context, gen uint64, tok core.Token) error {
//	        if !creds.StoreIf(gen, tok) {
//	            return core.ErrSessionChanged
//	        }
//	        return nil
//	    }),
//	    core.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		timeout: DefaultRefreshTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.refresh == nil {
		return nil, errors.New("refresh func is required but not set (use WithRefreshFunc option)")
	}

	return c, nil
}

// WithRefreshFunc sets the function that performs the refresh network call.
// This is a required option.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(c *Coordinator) error {
		if fn == nil {
			return errors.New("refresh func cannot be nil")
		}
		c.refresh = fn
		return nil
	}
}

// WithCommit sets the function that stores a refreshed token. It runs after
// a successful refresh and before any waiter is resolved.
func WithCommit(fn CommitFunc) Option {
	return func(c *Coordinator) error {
		if fn == nil {
			return errors.New("commit func cannot be nil")
		}
		c.commit = fn
		return nil
	}
}

// WithGeneration sets the function sampled when a refresh starts. Its value
// is handed to the commit func.
func WithGeneration(fn func() uint64) Option {
	return func(c *Coordinator) error {
		if fn == nil {
			return errors.New("generation func cannot be nil")
		}
		c.generation = fn
		return nil
	}
}

// WithRefreshTimeout bounds each refresh call independently of the timeout
// of the requests waiting on it.
//
// Default: 10 seconds
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return errors.New("refresh timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithLogger sets an optional logger for the coordinator.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}
