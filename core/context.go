package core

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	requestIDKey contextKey = iota
	skipAuthKey
)

// WithRequestID attaches a caller-chosen request id. Transports send it as
// X-Request-ID and keep it stable across replays of the same call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// WithoutAuth marks a call as anonymous: no bearer token is attached and an
// unauthorized response is never answered with a refresh.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey, true)
}

// SkipsAuth reports whether ctx was marked by WithoutAuth.
func SkipsAuth(ctx context.Context) bool {
	skip, _ := ctx.Value(skipAuthKey).(bool)
	return skip
}
