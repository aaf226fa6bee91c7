package grpc

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/buildwise/apiclient/v3/core"
)

func TestDefaultErrorHandler(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, DefaultErrorHandler(nil))
	})

	t.Run("unavailable is a network error", func(t *testing.T) {
		err := DefaultErrorHandler(status.Error(codes.Unavailable, "connection refused"))

		netErr, ok := core.AsNetworkError(err)
		require.True(t, ok)
		assert.True(t, netErr.Retryable)
		assert.Equal(t, codes.Unavailable, status.Code(netErr.Cause))
	})

	t.Run("non-status errors are network errors", func(t *testing.T) {
		err := DefaultErrorHandler(errors.New("transport closed"))
		assert.ErrorIs(t, err, core.ErrNetwork)
	})

	tests := []struct {
		code       codes.Code
		wantStatus int
		sentinel   error
	}{
		{codes.InvalidArgument, http.StatusBadRequest, core.ErrBadRequest},
		{codes.Unauthenticated, http.StatusUnauthorized, core.ErrUnauthorized},
		{codes.PermissionDenied, http.StatusForbidden, core.ErrForbidden},
		{codes.NotFound, http.StatusNotFound, core.ErrNotFound},
		{codes.AlreadyExists, http.StatusConflict, core.ErrConflict},
		{codes.FailedPrecondition, http.StatusUnprocessableEntity, core.ErrValidation},
		{codes.ResourceExhausted, http.StatusTooManyRequests, core.ErrRateLimited},
		{codes.DeadlineExceeded, http.StatusRequestTimeout, core.ErrClient},
		{codes.Internal, http.StatusInternalServerError, core.ErrServer},
		{codes.Unimplemented, http.StatusNotImplemented, core.ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := DefaultErrorHandler(status.Error(tt.code, "boom"))

			apiErr, ok := core.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.code.String(), apiErr.Code)
			assert.Equal(t, "boom", apiErr.Message)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}

	t.Run("an empty message falls back to the status default", func(t *testing.T) {
		err := DefaultErrorHandler(status.Error(codes.NotFound, ""))

		apiErr, ok := core.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, "not found", apiErr.Message)
	})
}

func TestPassthroughErrorHandler(t *testing.T) {
	err := status.Error(codes.Internal, "boom")
	assert.Equal(t, err, PassthroughErrorHandler(err))
}
