package grpc

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/buildwise/apiclient/v3/core"
)

// ErrorHandler converts the final error of a call into the error returned
// to the caller.
type ErrorHandler func(error) error

// PassthroughErrorHandler returns gRPC status errors unchanged.
func PassthroughErrorHandler(err error) error {
	return err
}

// DefaultErrorHandler maps gRPC status errors onto the same taxonomy the
// HTTP client uses: Unavailable becomes a *core.NetworkError, every other
// code a *core.APIError carrying the equivalent HTTP status.
func DefaultErrorHandler(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return core.NewNetworkError(err)
	}

	if st.Code() == codes.Unavailable || st.Code() == codes.Canceled {
		return core.NewNetworkError(err)
	}

	httpStatus := httpStatusFromCode(st.Code())
	return &core.APIError{
		Status:  httpStatus,
		Code:    st.Code().String(),
		Message: messageOrDefault(st.Message(), httpStatus),
	}
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusRequestTimeout
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func messageOrDefault(msg string, httpStatus int) string {
	if msg != "" {
		return msg
	}
	return core.DefaultMessage(httpStatus)
}
