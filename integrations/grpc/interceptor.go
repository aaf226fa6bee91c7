package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/buildwise/apiclient/v3/core"
)

// Authenticator is the credential source of the interceptor.
// *apiclient.Client satisfies it, so HTTP and gRPC calls share one set of
// credentials and one refresh coordinator.
type Authenticator interface {
	AccessToken() string
	Reauthenticate(ctx context.Context, sentToken string) (string, error)
	RetryPolicy() core.RetryPolicy
}

// Interceptor attaches bearer tokens to outgoing gRPC calls, answers
// Unauthenticated with one coordinated refresh and retries transient codes.
type Interceptor struct {
	auth            Authenticator
	errorHandler    ErrorHandler
	excludedMethods map[string]bool
	retryCodes      map[codes.Code]bool
	logger          Logger
}

// New creates a new gRPC client interceptor with the provided options.
// WithAuthenticator option is required.
func New(opts ...Option) (*Interceptor, error) {
	interceptor := &Interceptor{
		errorHandler:    DefaultErrorHandler,
		excludedMethods: make(map[string]bool),
		retryCodes: map[codes.Code]bool{
			codes.Unavailable:       true,
			codes.ResourceExhausted: true,
			codes.DeadlineExceeded:  true,
		},
	}

	for _, opt := range opts {
		if err := opt(interceptor); err != nil {
			return nil, err
		}
	}

	if interceptor.auth == nil {
		return nil, errors.New("authenticator is required, use WithAuthenticator option")
	}

	return interceptor, nil
}

// UnaryClientInterceptor returns a grpc.UnaryClientInterceptor that runs
// every call through the auth and retry stages.
func (i *Interceptor) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		call := func(ctx context.Context) error {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		return i.run(ctx, method, call)
	}
}

// StreamClientInterceptor returns a grpc.StreamClientInterceptor. Only
// stream establishment is covered; messages on an open stream are not
// replayed.
func (i *Interceptor) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		var stream grpc.ClientStream
		call := func(ctx context.Context) error {
			var err error
			stream, err = streamer(ctx, desc, cc, method, opts...)
			return err
		}
		if err := i.run(ctx, method, call); err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// run is the gRPC rendition of the HTTP pipeline: attach-auth, invoke,
// refresh-and-replay on Unauthenticated, backoff-and-replay on transient
// codes, then error handling.
func (i *Interceptor) run(ctx context.Context, method string, call func(context.Context) error) error {
	authenticated := !i.excludedMethods[method] && !core.SkipsAuth(ctx)
	if !authenticated && i.logger != nil {
		i.logger.Debug("skipping authentication for excluded method", "method", method)
	}

	policy := i.auth.RetryPolicy()
	var attempt core.Attempt
	var bearer string

	for {
		callCtx, sent := ctx, ""
		if authenticated {
			callCtx, sent = i.attachAuth(ctx, bearer)
			bearer = ""
		}

		err := call(callCtx)
		if err == nil {
			return nil
		}

		code := status.Code(err)

		if authenticated && code == codes.Unauthenticated && !attempt.AuthRetried {
			attempt.AuthRetried = true

			token, rerr := i.auth.Reauthenticate(ctx, sent)
			if rerr == nil {
				if i.logger != nil {
					i.logger.Debug("replaying call after token refresh", "method", method)
				}
				bearer = token
				continue
			}

			if i.logger != nil {
				i.logger.Warn("token refresh failed", "method", method, "error", rerr)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return i.errorHandler(status.FromContextError(ctxErr).Err())
			}
			return i.errorHandler(err)
		}

		if i.retryCodes[code] && policy.Allows(attempt.Retries) {
			if i.logger != nil {
				i.logger.Info("retrying call",
					"method", method,
					"code", code.String(),
					"retry", attempt.Retries+1,
					"delay", policy.Delay(attempt.Retries))
			}
			if werr := policy.Wait(ctx, attempt.Retries); werr != nil {
				return i.errorHandler(status.FromContextError(werr).Err())
			}
			attempt.Retries++
			continue
		}

		return i.errorHandler(err)
	}
}

// attachAuth adds the bearer token to the outgoing metadata. A one-shot
// override wins over the stored token.
func (i *Interceptor) attachAuth(ctx context.Context, override string) (context.Context, string) {
	token := override
	if token == "" {
		token = i.auth.AccessToken()
	}
	if token == "" {
		return ctx, ""
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), token
}
