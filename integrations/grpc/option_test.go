package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestNew_InvalidConfiguration(t *testing.T) {
	t.Run("missing authenticator", func(t *testing.T) {
		_, err := New()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authenticator is required")
	})

	t.Run("nil authenticator option", func(t *testing.T) {
		_, err := New(WithAuthenticator(nil))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authenticator cannot be nil")
	})
}

func TestOptions(t *testing.T) {
	auth := &fakeAuth{}

	t.Run("defaults", func(t *testing.T) {
		interceptor, err := New(WithAuthenticator(auth))
		require.NoError(t, err)
		assert.True(t, interceptor.retryCodes[codes.Unavailable])
		assert.True(t, interceptor.retryCodes[codes.ResourceExhausted])
		assert.True(t, interceptor.retryCodes[codes.DeadlineExceeded])
		assert.False(t, interceptor.retryCodes[codes.Internal])
		assert.Empty(t, interceptor.excludedMethods)
	})

	t.Run("WithLogger", func(t *testing.T) {
		_, err := New(WithAuthenticator(auth), WithLogger(&mockLogger{}))
		require.NoError(t, err)

		_, err = New(WithAuthenticator(auth), WithLogger(nil))
		assert.ErrorContains(t, err, "logger cannot be nil")
	})

	t.Run("WithErrorHandler", func(t *testing.T) {
		_, err := New(WithAuthenticator(auth), WithErrorHandler(PassthroughErrorHandler))
		require.NoError(t, err)

		_, err = New(WithAuthenticator(auth), WithErrorHandler(nil))
		assert.ErrorContains(t, err, "error handler cannot be nil")
	})

	t.Run("WithExcludedMethods", func(t *testing.T) {
		interceptor, err := New(WithAuthenticator(auth), WithExcludedMethods("/a.B/C", "/a.B/D"))
		require.NoError(t, err)
		assert.True(t, interceptor.excludedMethods["/a.B/C"])
		assert.True(t, interceptor.excludedMethods["/a.B/D"])

		_, err = New(WithAuthenticator(auth), WithExcludedMethods(""))
		assert.ErrorContains(t, err, "excluded method cannot be empty")
	})

	t.Run("WithRetryCodes", func(t *testing.T) {
		interceptor, err := New(WithAuthenticator(auth), WithRetryCodes(codes.Aborted))
		require.NoError(t, err)
		assert.Equal(t, map[codes.Code]bool{codes.Aborted: true}, interceptor.retryCodes)

		_, err = New(WithAuthenticator(auth), WithRetryCodes(codes.Unauthenticated))
		assert.Error(t, err)
	})
}
