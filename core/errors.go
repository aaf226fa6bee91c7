package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Sentinel errors for failure classification.
// Every *APIError matches exactly one of the status sentinels via errors.Is,
// and every *NetworkError matches ErrNetwork.
var (
	// ErrNetwork is matched by failures where no response was received.
	ErrNetwork = errors.New("network failure")

	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")

	// ErrServer is matched by any 5xx response.
	ErrServer = errors.New("server error")

	// ErrClient is matched by 4xx responses without a more specific sentinel.
	ErrClient = errors.New("client error")

	// ErrNoRefreshToken is returned by refresh attempts when neither the
	// credential holder nor the session listener can supply a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// GenericErrorMessage is the message of last resort for API failures.
const GenericErrorMessage = "request failed"

// defaultMessages holds the static per-status messages used when the response
// body carries no message of its own.
var defaultMessages = map[int]string{
	http.StatusBadRequest:          "bad request",
	http.StatusUnauthorized:        "authentication required",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation failed",
	http.StatusTooManyRequests:     "rate limited",
	http.StatusInternalServerError: "internal server error",
	http.StatusBadGateway:          "bad gateway",
	http.StatusServiceUnavailable:  "service unavailable",
}

// DefaultMessage returns the static message for status, or GenericErrorMessage.
func DefaultMessage(status int) string {
	if msg, ok := defaultMessages[status]; ok {
		return msg
	}
	return GenericErrorMessage
}

// NetworkError is a failure where no response was received at all.
type NetworkError struct {
	// Message is a human-readable description.
	Message string

	// Cause is the underlying transport error.
	Cause error

	// Retryable is always true for network failures.
	Retryable bool
}

// NewNetworkError wraps cause as a retryable network failure.
func NewNetworkError(cause error) *NetworkError {
	msg := "network error: no response received"
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause)
	}
	return &NetworkError{Message: msg, Cause: cause, Retryable: true}
}

func (e *NetworkError) Error() string {
	return e.Message
}

// Unwrap exposes the transport error so errors.Is(err, context.DeadlineExceeded)
// and similar checks keep working.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Is allows the error to be compared with ErrNetwork.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// APIError is a classified failure derived from an HTTP error response.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int

	// Code is the optional machine-readable code from the response body.
	Code string

	// Message is the resolved human-readable message.
	Message string

	// Details is the original response body, untouched.
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Retryable reports whether the status belongs to the transient failure class.
func (e *APIError) Retryable() bool {
	return IsRetryableStatus(e.Status)
}

// Is matches the status sentinel for this error.
func (e *APIError) Is(target error) bool {
	return statusSentinel(e.Status) == target
}

func statusSentinel(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	case status >= 400:
		return ErrClient
	}
	return nil
}

// errorBody is the subset of fields the remote service may include in an
// error response. Every field is optional and loosely typed.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Code    json.RawMessage `json:"code"`
}

// NewAPIError classifies a received error response.
//
// The message is resolved in priority order: the body "message" field, then
// a nested "detail.message", then a top-level "detail" string, then the static
// default for the status, then GenericErrorMessage.
func NewAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		apiErr.Details = json.RawMessage(append([]byte(nil), trimmed...))
	}

	var eb errorBody
	if len(trimmed) > 0 && json.Unmarshal(trimmed, &eb) == nil {
		apiErr.Code = rawCode(eb.Code)
		apiErr.Message = resolveMessage(eb)
	}

	if apiErr.Message == "" {
		apiErr.Message = DefaultMessage(status)
	}

	return apiErr
}

func resolveMessage(eb errorBody) string {
	if msg := rawString(eb.Message); msg != "" {
		return msg
	}

	if len(eb.Detail) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(eb.Detail, &nested) == nil && nested.Message != "" {
		return nested.Message
	}

	return rawString(eb.Detail)
}

// rawString returns the value of a JSON string, or "" for anything else.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawCode accepts both string and numeric codes.
func rawCode(raw json.RawMessage) string {
	if s := rawString(raw); s != "" {
		return s
	}

	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return ""
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return n.String()
}

// AsAPIError is a convenience wrapper around errors.As.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// AsNetworkError is a convenience wrapper around errors.As.
func AsNetworkError(err error) (*NetworkError, bool) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}

// IsRetryable reports whether err belongs to the transient failure class.
func IsRetryable(err error) bool {
	if netErr, ok := AsNetworkError(err); ok {
		return netErr.Retryable
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Retryable()
	}
	return false
}
