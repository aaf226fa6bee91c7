package apiclient

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/buildwise/apiclient/v3/core"
)

// mockLogger is a mock implementation of Logger for testing.
type mockLogger struct {
	mu         sync.Mutex
	debugCalls []logCall
	infoCalls  []logCall
	warnCalls  []logCall
	errorCalls []logCall
}

type logCall struct {
	msg  string
	args []any
}

func (m *mockLogger) Debug(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugCalls = append(m.debugCalls, logCall{msg, args})
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls = append(m.infoCalls, logCall{msg, args})
}

func (m *mockLogger) Warn(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnCalls = append(m.warnCalls, logCall{msg, args})
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls = append(m.errorCalls, logCall{msg, args})
}

func (m *mockLogger) messages(calls []logCall) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.msg)
	}
	return out
}

const testBaseURL = "https://api.example.com/api"

func Test_New_OptionsValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
		errMsg  string
	}{
		{
			name:    "missing base URL",
			opts:    []Option{},
			wantErr: true,
			errMsg:  "base URL is required",
		},
		{
			name:    "blank base URL",
			opts:    []Option{WithBaseURL("  ")},
			wantErr: true,
			errMsg:  "base URL is required",
		},
		{
			name:    "relative base URL",
			opts:    []Option{WithBaseURL("/api")},
			wantErr: true,
			errMsg:  "base URL must be an absolute",
		},
		{
			name:    "unsupported scheme",
			opts:    []Option{WithBaseURL("ftp://api.example.com")},
			wantErr: true,
			errMsg:  "base URL must be an absolute",
		},
		{
			name:    "valid minimal configuration",
			opts:    []Option{WithBaseURL(testBaseURL)},
			wantErr: false,
		},
		{
			name:    "negative max retries",
			opts:    []Option{WithBaseURL(testBaseURL), WithMaxRetries(-1)},
			wantErr: true,
			errMsg:  "max retries cannot be negative",
		},
		{
			name:    "negative retry delay",
			opts:    []Option{WithBaseURL(testBaseURL), WithRetryDelay(-time.Second)},
			wantErr: true,
			errMsg:  "retry delay cannot be negative",
		},
		{
			name:    "zero retries is allowed",
			opts:    []Option{WithBaseURL(testBaseURL), WithMaxRetries(0), WithRetryDelay(0)},
			wantErr: false,
		},
		{
			name:    "nil onUnauthorized",
			opts:    []Option{WithBaseURL(testBaseURL), WithOnUnauthorized(nil)},
			wantErr: true,
			errMsg:  "onUnauthorized cannot be nil",
		},
		{
			name:    "nil refresh token getter",
			opts:    []Option{WithBaseURL(testBaseURL), WithRefreshTokenGetter(nil)},
			wantErr: true,
			errMsg:  "refresh token getter cannot be nil",
		},
		{
			name:    "nil onTokenRefresh",
			opts:    []Option{WithBaseURL(testBaseURL), WithOnTokenRefresh(nil)},
			wantErr: true,
			errMsg:  "onTokenRefresh cannot be nil",
		},
		{
			name:    "nil session listener",
			opts:    []Option{WithBaseURL(testBaseURL), WithSessionListener(nil)},
			wantErr: true,
			errMsg:  "session listener cannot be nil",
		},
		{
			name:    "nil HTTP client",
			opts:    []Option{WithBaseURL(testBaseURL), WithHTTPClient(nil)},
			wantErr: true,
			errMsg:  "HTTP client cannot be nil",
		},
		{
			name:    "empty refresh path",
			opts:    []Option{WithBaseURL(testBaseURL), WithRefreshPath("")},
			wantErr: true,
			errMsg:  "refresh path cannot be empty",
		},
		{
			name:    "zero refresh timeout",
			opts:    []Option{WithBaseURL(testBaseURL), WithRefreshTimeout(0)},
			wantErr: true,
			errMsg:  "refresh timeout must be positive",
		},
		{
			name:    "zero proactive skew",
			opts:    []Option{WithBaseURL(testBaseURL), WithProactiveRefresh(0)},
			wantErr: true,
			errMsg:  "proactive refresh skew must be positive",
		},
		{
			name:    "nil rate limiter",
			opts:    []Option{WithBaseURL(testBaseURL), WithRateLimiter(nil)},
			wantErr: true,
			errMsg:  "rate limiter cannot be nil",
		},
		{
			name:    "nil logger",
			opts:    []Option{WithBaseURL(testBaseURL), WithLogger(nil)},
			wantErr: true,
			errMsg:  "logger cannot be nil",
		},
		{
			name:    "nil metrics",
			opts:    []Option{WithBaseURL(testBaseURL), WithMetrics(nil)},
			wantErr: true,
			errMsg:  "metrics cannot be nil",
		},
		{
			name:    "nil tracer",
			opts:    []Option{WithBaseURL(testBaseURL), WithTracer(nil)},
			wantErr: true,
			errMsg:  "tracer cannot be nil",
		},
		{
			name:    "empty user agent",
			opts:    []Option{WithBaseURL(testBaseURL), WithUserAgent("")},
			wantErr: true,
			errMsg:  "user agent cannot be empty",
		},
		{
			name: "valid configuration with all options",
			opts: []Option{
				WithBaseURL(testBaseURL),
				WithMaxRetries(5),
				WithRetryDelay(50 * time.Millisecond),
				WithOnUnauthorized(func() {}),
				WithRefreshTokenGetter(func() (string, bool) { return "rt", true }),
				WithOnTokenRefresh(func(string) {}),
				WithSessionListener(core.ListenerFuncs{}),
				WithHTTPClient(&http.Client{Timeout: time.Second}),
				WithRefreshPath("/v2/auth/refresh"),
				WithRefreshTimeout(time.Second),
				WithProactiveRefresh(time.Minute),
				WithRateLimiter(rate.NewLimiter(rate.Inf, 1)),
				WithLogger(&mockLogger{}),
				WithMetrics(&NoopMetrics{}),
				WithTracer(&NoopTracer{}),
				WithUserAgent("projects-web/1.0"),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
				assert.NotNil(t, client.httpClient)
				assert.NotNil(t, client.coordinator)
			}
		})
	}
}

func Test_New_Defaults(t *testing.T) {
	client, err := New(WithBaseURL(testBaseURL))
	require.NoError(t, err)

	assert.Equal(t, 3, client.retry.MaxRetries)
	assert.Equal(t, 1000*time.Millisecond, client.retry.BaseDelay)
	assert.Equal(t, DefaultRequestTimeout, client.httpClient.Timeout)
	assert.Equal(t, DefaultRefreshPath, client.refreshPath)
	assert.Equal(t, core.DefaultRefreshTimeout, client.refreshTimeout)
	assert.Equal(t, DefaultUserAgent, client.userAgent)
	assert.Zero(t, client.proactiveSkew)
	assert.Nil(t, client.limiter)
	assert.Nil(t, client.logger)
	assert.IsType(t, &NoopMetrics{}, client.metrics)
	assert.IsType(t, &NoopTracer{}, client.tracer)
	assert.Empty(t, client.listeners)
}

func Test_New_ErrorWrapping(t *testing.T) {
	_, err := New(WithBaseURL(testBaseURL), WithMaxRetries(-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid option")

	_, err = New()
	assert.ErrorIs(t, err, ErrBaseURLMissing)
	assert.Contains(t, err.Error(), "invalid client configuration")

	_, err = New(WithBaseURL("api.example.com"))
	assert.ErrorIs(t, err, ErrBaseURLInvalid)
}

func Test_CallbackOptions(t *testing.T) {
	t.Run("callbacks become the first listener", func(t *testing.T) {
		second := core.ListenerFuncs{}
		client, err := New(
			WithBaseURL(testBaseURL),
			WithSessionListener(second),
			WithRefreshTokenGetter(func() (string, bool) { return "rt", true }),
		)
		require.NoError(t, err)
		require.Len(t, client.listeners, 2)

		first, ok := client.listeners[0].(core.ListenerFuncs)
		require.True(t, ok)
		assert.NotNil(t, first.GetRefreshToken)
	})

	t.Run("no callbacks means no implicit listener", func(t *testing.T) {
		client, err := New(WithBaseURL(testBaseURL))
		require.NoError(t, err)
		assert.Empty(t, client.listeners)
	})
}

func Test_url(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{name: "base path is kept", base: "https://api.example.com/api", path: "/projects", want: "https://api.example.com/api/projects"},
		{name: "trailing slash on base", base: "https://api.example.com/api/", path: "projects", want: "https://api.example.com/api/projects"},
		{name: "bare host", base: "https://api.example.com", path: "/auth/refresh", want: "https://api.example.com/auth/refresh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(WithBaseURL(tt.base))
			require.NoError(t, err)
			assert.Equal(t, tt.want, client.url(tt.path, nil))
		})
	}

	t.Run("query is appended", func(t *testing.T) {
		client, err := New(WithBaseURL(testBaseURL))
		require.NoError(t, err)
		got := client.url("/projects", map[string][]string{"page": {"2"}})
		assert.Equal(t, "https://api.example.com/api/projects?page=2", got)
	})
}
