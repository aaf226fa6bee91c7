package apiclient

import (
	"errors"

	"github.com/buildwise/apiclient/v3/core"
)

// Sentinel errors for client configuration.
var (
	ErrBaseURLMissing = errors.New("base URL is required but not set (use WithBaseURL option)")
	ErrBaseURLInvalid = errors.New("base URL must be an absolute http(s) URL")
)

// ErrResponseTooLarge is the cause of the *NetworkError returned when a
// response body exceeds the 10 MiB read limit.
var ErrResponseTooLarge = errors.New("response body exceeds 10 MiB limit")

// The failure taxonomy lives in core and is re-exported for convenience.
type (
	// NetworkError is returned when no response was received.
	NetworkError = core.NetworkError

	// APIError is returned for every received error response.
	APIError = core.APIError
)

// ErrorMessage returns the human-readable message of a request failure,
// falling back to err.Error() for anything unclassified.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := core.AsAPIError(err); ok {
		return apiErr.Message
	}
	if netErr, ok := core.AsNetworkError(err); ok {
		return netErr.Message
	}
	return err.Error()
}
