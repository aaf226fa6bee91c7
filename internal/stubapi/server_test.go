package stubapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	all := append([]Option{WithUser("ada", "lovelace")}, opts...)
	srv, err := New(all...)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{name: "defaults"},
		{name: "short secret", opts: []Option{WithSecret([]byte("short"))}, wantErr: "secret must be at least 32 bytes"},
		{name: "zero ttl", opts: []Option{WithAccessTTL(0)}, wantErr: "access TTL must be positive"},
		{name: "empty username", opts: []Option{WithUser("", "x")}, wantErr: "username cannot be empty"},
		{name: "nil clock", opts: []Option{WithClock(nil)}, wantErr: "clock cannot be nil"},
		{name: "nil logger", opts: []Option{WithLogger(nil)}, wantErr: "logger cannot be nil"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := New(tc.opts...)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid option")
				assert.Contains(t, err.Error(), tc.wantErr)
				assert.Nil(t, srv)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, srv)
		})
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, WithAccessTTL(time.Minute))

	t.Run("valid credentials", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodPost, "/auth/login", "", `{"username":"ada","password":"lovelace"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])

		data := body["data"].(map[string]any)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
		assert.Equal(t, float64(60), data["expires_in"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodPost, "/auth/login", "", `{"username":"ada","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeInvalidCredentials, body["code"])
		assert.Equal(t, "invalid username or password", body["detail"])
		assert.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodPost, "/auth/login", "", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeBadRequest, body["code"])
	})
}

func TestProtected(t *testing.T) {
	clock := newFakeClock()
	srv := newTestServer(t, WithClock(clock.Now), WithAccessTTL(time.Minute))

	access, _, err := srv.IssueSession("ada")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodGet, "/v1/projects?page=2", access, "")
		require.Equal(t, http.StatusOK, rec.Code)

		data := body["data"].(map[string]any)
		assert.Equal(t, "/projects", data["path"])
		assert.Equal(t, "ada", data["subject"])
	})

	t.Run("post echoes body", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodPost, "/v1/projects", access, `{"name":"bridge"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		data := body["data"].(map[string]any)
		assert.Equal(t, `{"name":"bridge"}`, data["body"])
	})

	t.Run("missing token", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodGet, "/v1/projects", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeTokenMissing, body["code"])
		assert.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec, body := do(t, srv, http.MethodGet, "/v1/projects", "not-a-jwt", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeTokenInvalid, body["code"])
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	})

	t.Run("token signed by another server", func(t *testing.T) {
		other := newTestServer(t, WithClock(clock.Now))
		foreign, _, err := other.IssueSession("ada")
		require.NoError(t, err)

		rec, body := do(t, srv, http.MethodGet, "/v1/projects", foreign, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeTokenInvalid, body["code"])
	})

	t.Run("expired token", func(t *testing.T) {
		clock.Advance(2 * time.Minute)

		rec, body := do(t, srv, http.MethodGet, "/v1/projects", access, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeTokenExpired, body["code"])
		assert.Equal(t, "token expired", body["detail"])
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error_description="token expired"`)
	})
}

func TestRefresh(t *testing.T) {
	clock := newFakeClock()
	srv := newTestServer(t, WithClock(clock.Now), WithAccessTTL(time.Minute))

	expired, refresh, err := srv.IssueSession("ada")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	rec, body := do(t, srv, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	fresh := body["data"].(map[string]any)["access_token"].(string)
	assert.NotEqual(t, expired, fresh)

	rec, _ = do(t, srv, http.MethodGet, "/v1/me", fresh, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("missing refresh token", func(t *testing.T) {
		rec, _ := do(t, srv, http.MethodPost, "/auth/refresh", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("revoked", func(t *testing.T) {
		srv.RevokeSessions()
		rec, body := do(t, srv, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeInvalidRefreshToken, body["code"])
	})

	assert.Equal(t, int64(3), srv.RefreshCalls())
}

func TestFailNext(t *testing.T) {
	srv := newTestServer(t)
	access, _, err := srv.IssueSession("ada")
	require.NoError(t, err)

	srv.FailNext(http.StatusServiceUnavailable, 2)

	for range 2 {
		rec, body := do(t, srv, http.MethodGet, "/v1/projects", access, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, codeInjected, body["code"])
	}

	rec, _ := do(t, srv, http.MethodGet, "/v1/projects", access, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), srv.ProtectedCalls())
}
