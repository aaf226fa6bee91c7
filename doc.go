/*
Package apiclient provides the authenticated HTTP transport for the remote API.

Every call made through a Client carries the current bearer token. When the
service answers 401 the client refreshes the access token once, shared by
every request that failed at the same time, and replays each of them with the
new token. Transient failures (no response, 408, 429, 5xx) are retried with
exponential backoff. Whatever goes wrong, the caller receives exactly one of
two error kinds: *NetworkError when no response arrived, *APIError otherwise.

# Quick Start

	client, err := apiclient.New(
	    apiclient.WithBaseURL("https://api.example.com/api"),
	    apiclient.WithOnUnauthorized(func() { ui.ShowLogin() }),
	)
	if err != nil {
	    log.Fatal(err)
	}

	client.SetAccessToken(accessToken)
	client.SetRefreshToken(refreshToken)

	var projects []Project
	if err := client.Get(ctx, "/projects", &projects); err != nil {
	    log.Print(apiclient.ErrorMessage(err))
	}

# Request Pipeline

Each logical call goes through the same stages:

	attach-auth -> send -> classify -> refresh-and-replay -> backoff-and-replay -> transform

The refresh stage runs at most once per call. The backoff stage runs up to
WithMaxRetries times and waits WithRetryDelay × 2^n before retry n. The two
budgets are independent: a replayed call may still be retried after a 503.

# Refresh Coordination

Only one refresh call is in flight per Client. Requests that fail with 401
while it runs wait in arrival order and are resumed with its result. The
refresh call itself never carries an Authorization header and is never
retried. It is bounded by WithRefreshTimeout and is not canceled when the
request that started it is.

When no refresh token is available or the refresh fails, the access token is
cleared and the WithOnUnauthorized hook and every session listener are
notified once. The failed request still returns its error.

# Errors

	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr):
	    fmt.Println(apiErr.Status, apiErr.Code, apiErr.Message)
	case errors.Is(err, core.ErrNetwork):
	    fmt.Println("offline?")
	}

APIError.Message comes from the response body ("message", then
"detail.message", then a "detail" string) or a static per-status default.

# Session Layer

The hooks can be given individually (WithRefreshTokenGetter,
WithOnTokenRefresh, WithOnUnauthorized) or as one core.SessionListener with
WithSessionListener. The session package provides a listener that persists
tokens in memory or Redis.

# Observability

WithLogger accepts any log/slog compatible logger; NewZapLogger,
NewLogrusLogger and NewZerologLogger adapt the common ones. WithMetrics and
WithTracer accept Prometheus and OpenTelemetry backends.
*/
package apiclient
