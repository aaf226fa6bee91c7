package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiclient "github.com/buildwise/apiclient/v3"
	"github.com/buildwise/apiclient/v3/core"
)

type seederStub struct {
	access, refresh string
}

func (s *seederStub) SetAccessToken(token string)  { s.access = token }
func (s *seederStub) SetRefreshToken(token string) { s.refresh = token }

// failingStore fails every operation.
type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (Record, error) { return Record{}, f.err }
func (f failingStore) Save(context.Context, Record) error   { return f.err }
func (f failingStore) Clear(context.Context) error          { return f.err }

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil)
	assert.ErrorContains(t, err, "store cannot be nil")

	_, err = NewManager(NewMemoryStore(), WithOnSignedOut(nil))
	assert.ErrorContains(t, err, "onSignedOut cannot be nil")

	_, err = NewManager(NewMemoryStore(), WithLogger(nil))
	assert.ErrorContains(t, err, "logger cannot be nil")
}

func TestManager_Listener(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh token comes from the store", func(t *testing.T) {
		store := NewMemoryStore()
		mgr, err := NewManager(store)
		require.NoError(t, err)

		_, ok := mgr.RefreshToken(ctx)
		assert.False(t, ok)

		require.NoError(t, store.Save(ctx, Record{RefreshToken: "rt"}))
		rt, ok := mgr.RefreshToken(ctx)
		assert.True(t, ok)
		assert.Equal(t, "rt", rt)
	})

	t.Run("refreshed tokens are persisted next to the refresh token", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, Record{AccessToken: "old", RefreshToken: "rt"}))
		mgr, err := NewManager(store)
		require.NoError(t, err)

		exp := time.Now().Add(time.Hour)
		mgr.OnTokenRefresh(ctx, core.Token{AccessToken: "new", ExpiresAt: exp})

		rec, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", rec.AccessToken)
		assert.Equal(t, "rt", rec.RefreshToken)
		assert.True(t, exp.Equal(rec.ExpiresAt))
	})

	t.Run("unauthorized clears the store and signs out", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, Record{RefreshToken: "rt"}))

		var signedOut int
		mgr, err := NewManager(store, WithOnSignedOut(func() { signedOut++ }))
		require.NoError(t, err)

		mgr.OnUnauthorized(ctx)

		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoSession)
		assert.Equal(t, 1, signedOut)
	})

	t.Run("store failures never panic", func(t *testing.T) {
		mgr, err := NewManager(failingStore{err: errors.New("disk full")})
		require.NoError(t, err)

		_, ok := mgr.RefreshToken(ctx)
		assert.False(t, ok)
		assert.NotPanics(t, func() {
			mgr.OnTokenRefresh(ctx, core.Token{AccessToken: "a"})
			mgr.OnUnauthorized(ctx)
		})
	})
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	mgr, err := NewManager(store)
	require.NoError(t, err)
	seeder := &seederStub{}

	assert.ErrorIs(t, mgr.Restore(ctx, seeder), ErrNoSession)
	assert.Error(t, mgr.Login(ctx, seeder, Record{}))

	require.NoError(t, mgr.Login(ctx, seeder, Record{AccessToken: "a", RefreshToken: "r"}))
	assert.Equal(t, &seederStub{access: "a", refresh: "r"}, seeder)

	restored := &seederStub{}
	require.NoError(t, mgr.Restore(ctx, restored))
	assert.Equal(t, &seederStub{access: "a", refresh: "r"}, restored)

	require.NoError(t, mgr.Logout(ctx, restored))
	assert.Equal(t, &seederStub{}, restored)
	assert.ErrorIs(t, mgr.Restore(ctx, restored), ErrNoSession)
}

func TestManager_WithClient(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == apiclient.DefaultRefreshPath {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "stored-rt" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			refreshes.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"access_token": "fresh", "expires_in": 60},
			})
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	ctx := context.Background()
	store, _ := newRedisStore(t)
	require.NoError(t, store.Save(ctx, Record{AccessToken: "stale", RefreshToken: "stored-rt"}))

	var signedOut atomic.Int32
	mgr, err := NewManager(store, WithOnSignedOut(func() { signedOut.Add(1) }))
	require.NoError(t, err)

	client, err := apiclient.New(apiclient.WithBaseURL(srv.URL), apiclient.WithSessionListener(mgr))
	require.NoError(t, err)

	t.Run("a restored session is refreshed and persisted", func(t *testing.T) {
		require.NoError(t, mgr.Restore(ctx, client))
		// The client holds the refresh token now; drop it so the store is consulted.
		client.SetRefreshToken("")

		require.NoError(t, client.Get(ctx, "/projects", nil))
		assert.Equal(t, int32(1), refreshes.Load())

		rec, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh", rec.AccessToken)
		assert.Equal(t, "stored-rt", rec.RefreshToken)
		assert.False(t, rec.ExpiresAt.IsZero())
	})

	t.Run("a lost session is cleared from the store", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, Record{AccessToken: "stale", RefreshToken: "revoked"}))
		client.SetAccessToken("stale")

		err := client.Get(ctx, "/projects", nil)
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.Equal(t, int32(1), signedOut.Load())

		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestManager_LogoutDuringRefresh(t *testing.T) {
	refreshStarted := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == apiclient.DefaultRefreshPath {
			close(refreshStarted)
			<-release
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"access_token": "fresh"},
			})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, Record{AccessToken: "stale", RefreshToken: "stored-rt"}))

	var signedOut atomic.Int32
	mgr, err := NewManager(store, WithOnSignedOut(func() { signedOut.Add(1) }))
	require.NoError(t, err)

	client, err := apiclient.New(apiclient.WithBaseURL(srv.URL), apiclient.WithSessionListener(mgr))
	require.NoError(t, err)
	require.NoError(t, mgr.Restore(ctx, client))

	done := make(chan error, 1)
	go func() { done <- client.Get(ctx, "/projects", nil) }()

	select {
	case <-refreshStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
	require.NoError(t, mgr.Logout(ctx, client))
	close(release)

	err = <-done
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession, "the refreshed token must not be written back")
	assert.Empty(t, client.AccessToken())
	assert.Zero(t, signedOut.Load())
}
