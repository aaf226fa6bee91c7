package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
)

// Option configures the interceptor.
type Option func(*Interceptor) error

// Logger defines an optional logging interface compatible with log/slog.
// This is the same interface used by core for consistent logging across the stack.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WithAuthenticator sets the credential source (REQUIRED).
//
// Example:
//
//	client, _ := apiclient.New(apiclient.WithBaseURL(baseURL))
//	interceptor, _ := grpc.New(
//	    grpc.WithAuthenticator(client),
//	)
func WithAuthenticator(a Authenticator) Option {
	return func(i *Interceptor) error {
		if a == nil {
			return errors.New("authenticator cannot be nil")
		}
		i.auth = a
		return nil
	}
}

// WithErrorHandler sets a custom error handler.
//
// Default: DefaultErrorHandler
func WithErrorHandler(handler ErrorHandler) Option {
	return func(i *Interceptor) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		i.errorHandler = handler
		return nil
	}
}

// WithExcludedMethods sets gRPC methods that are called without a token.
// Method names should be fully qualified (e.g., "/package.Service/Method").
//
// Example:
//
//	interceptor, _ := grpc.New(
//	    grpc.WithAuthenticator(client),
//	    grpc.WithExcludedMethods(
//	        "/grpc.health.v1.Health/Check",
//	        "/auth.Auth/Login",
//	    ),
//	)
func WithExcludedMethods(methods ...string) Option {
	return func(i *Interceptor) error {
		for _, method := range methods {
			if method == "" {
				return errors.New("excluded method cannot be empty")
			}
			i.excludedMethods[method] = true
		}
		return nil
	}
}

// WithRetryCodes replaces the set of status codes treated as transient.
//
// Default: Unavailable, ResourceExhausted, DeadlineExceeded
func WithRetryCodes(retryable ...codes.Code) Option {
	return func(i *Interceptor) error {
		set := make(map[codes.Code]bool, len(retryable))
		for _, c := range retryable {
			if c == codes.OK || c == codes.Unauthenticated {
				return errors.New("OK and Unauthenticated cannot be retry codes")
			}
			set[c] = true
		}
		i.retryCodes = set
		return nil
	}
}

// WithLogger sets an optional logger for the interceptor.
//
// The logger interface is compatible with log/slog.Logger and similar loggers.
func WithLogger(logger Logger) Option {
	return func(i *Interceptor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		i.logger = logger
		return nil
	}
}
