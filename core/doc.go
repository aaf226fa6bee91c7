/*
Package core provides the transport-agnostic engine behind the API client:
credential ownership, refresh coordination, retry policy and failure
classification.

	┌─────────────────────────────────────────────┐
	│         Transports                          │
	│  (apiclient HTTP pipeline, gRPC interceptor)│
	└────────────────┬────────────────────────────┘
	                 │
	                 ▼
	┌─────────────────────────────────────────────┐
	│          Core Engine (THIS PACKAGE)         │
	│  • Credentials (access/refresh token)       │
	│  • Coordinator (single-flight refresh)      │
	│  • RetryPolicy (bounded exponential backoff)│
	│  • NetworkError / APIError classification   │
	└────────────────┬────────────────────────────┘
	                 │
	                 ▼
	┌─────────────────────────────────────────────┐
	│          SessionListener                    │
	│  (session store, sign-out handling)         │
	└─────────────────────────────────────────────┘

# Refresh Coordination

	coord, err := core.New(
	    core.WithRefreshFunc(func(ctx context.Context, rt string) (core.Token, error) {
	        return exchange(ctx, rt) // bare call, no auth, no retry
	    }),
	    core.WithGeneration(creds.Generation),
	    core.WithCommit(func(ctx context.Context, gen uint64, tok core.Token) error {
	        if !creds.StoreIf(gen, tok) {
	            return core.ErrSessionChanged
	        }
	        return nil
	    }),
	)

	tok, err := coord.Refresh(ctx, refreshToken)

Exactly one refresh call is in flight at a time. Callers that arrive while it
runs are queued and resolved, in arrival order, with the same token or the same
error.

# Retry Policy

	p := core.RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
	p.Delay(0) // 1s
	p.Delay(1) // 2s
	p.Delay(2) // 4s

Transient failures are: no response, 408, 429 and every 5xx status.

# Errors

Every failure returned by a transport is either a *NetworkError (no response,
always retryable) or an *APIError (status, optional code, resolved message and
the raw body). Both support errors.Is against the sentinels in this package:

	if errors.Is(err, core.ErrNotFound) {
	    // 404
	}

	if apiErr, ok := core.AsAPIError(err); ok {
	    fmt.Println(apiErr.Status, apiErr.Message)
	}
*/
package core
