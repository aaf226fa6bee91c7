package stubapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	// ErrTokenMissing is returned when a protected route gets no bearer token.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenInvalid is matched by every rejected access token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidAuthFormat indicates the Authorization header is not "Bearer <token>".
	ErrInvalidAuthFormat = errors.New("authorization header format must be Bearer {token}")
)

// Error codes sent in the "code" field of error bodies.
const (
	codeTokenMissing        = "token_missing"
	codeTokenInvalid        = "token_invalid"
	codeTokenExpired        = "token_expired"
	codeInvalidCredentials  = "invalid_credentials"
	codeInvalidRefreshToken = "invalid_refresh_token"
	codeBadRequest          = "bad_request"
	codeInjected            = "injected_failure"
)

// errorResponse is the error body of the stub:
//
//	{"detail": "token expired", "code": "token_expired"}
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// invalidError wraps a token verification failure with ErrTokenInvalid.
type invalidError struct {
	code    string
	details error
}

// Is allows the error to support equality to ErrTokenInvalid.
func (e invalidError) Is(target error) bool {
	return target == ErrTokenInvalid
}

func (e invalidError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTokenInvalid, e.details)
}

func (e invalidError) Unwrap() error {
	return e.details
}

// apiError is a handler failure with a status and code.
type apiError struct {
	status int
	code   string
	detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.code, e.detail)
}

func newAPIError(status int, code, detail string) *apiError {
	return &apiError{status: status, code: code, detail: detail}
}

// errorHandler renders every handler error as an errorResponse. 401s carry a
// WWW-Authenticate challenge per RFC 6750.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := mapError(err)
	if status == http.StatusUnauthorized {
		challenge := `Bearer realm="api"`
		if body.Code == codeTokenInvalid || body.Code == codeTokenExpired {
			challenge += fmt.Sprintf(`, error="invalid_token", error_description=%q`, body.Detail)
		}
		c.Response().Header().Set("WWW-Authenticate", challenge)
	}

	_ = c.JSON(status, body)
}

func mapError(err error) (int, errorResponse) {
	var apiErr *apiError
	var invalid invalidError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.status, errorResponse{Detail: apiErr.detail, Code: apiErr.code}
	case errors.Is(err, ErrTokenMissing):
		return http.StatusUnauthorized, errorResponse{Detail: "authentication required", Code: codeTokenMissing}
	case errors.Is(err, ErrInvalidAuthFormat):
		return http.StatusBadRequest, errorResponse{Detail: err.Error(), Code: codeBadRequest}
	case errors.As(err, &invalid):
		detail := "token is invalid"
		if invalid.code == codeTokenExpired {
			detail = "token expired"
		}
		return http.StatusUnauthorized, errorResponse{Detail: detail, Code: invalid.code}
	case errors.As(err, &httpErr):
		return httpErr.Code, errorResponse{Detail: fmt.Sprint(httpErr.Message)}
	default:
		return http.StatusInternalServerError, errorResponse{Detail: "internal server error"}
	}
}
