// Package session persists the tokens of an API client between runs and
// reacts to the client's session events.
//
// A Manager is registered on the client as a core.SessionListener:
//
//	mgr, _ := session.NewManager(store, session.WithOnSignedOut(ui.ShowLogin))
//	client, _ := apiclient.New(
//	    apiclient.WithBaseURL(baseURL),
//	    apiclient.WithSessionListener(mgr),
//	)
//	_ = mgr.Restore(ctx, client)
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildwise/apiclient/v3/core"
)

// Seeder receives the tokens of a restored session. *apiclient.Client
// satisfies it.
type Seeder interface {
	SetAccessToken(token string)
	SetRefreshToken(token string)
}

// Logger defines an optional logging interface compatible with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Manager implements core.SessionListener on top of a Store.
type Manager struct {
	store       Store
	onSignedOut func()
	logger      Logger
}

var _ core.SessionListener = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager) error

// WithOnSignedOut sets a hook run after the stored session was discarded
// because the client could not refresh it.
func WithOnSignedOut(fn func()) ManagerOption {
	return func(m *Manager) error {
		if fn == nil {
			return errors.New("onSignedOut cannot be nil")
		}
		m.onSignedOut = fn
		return nil
	}
}

// WithLogger sets an optional logger for the manager.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	m := &Manager{store: store}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return m, nil
}

// RefreshToken returns the stored refresh token, if any.
func (m *Manager) RefreshToken(ctx context.Context) (string, bool) {
	rec, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSession) && m.logger != nil {
			m.logger.Error("failed to load session", "error", err)
		}
		return "", false
	}
	return rec.RefreshToken, rec.RefreshToken != ""
}

// OnTokenRefresh persists the new access token next to the stored refresh token.
func (m *Manager) OnTokenRefresh(ctx context.Context, tok core.Token) {
	rec, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) {
		if m.logger != nil {
			m.logger.Error("failed to load session", "error", err)
		}
		return
	}

	rec.AccessToken = tok.AccessToken
	rec.ExpiresAt = tok.ExpiresAt

	if err := m.store.Save(ctx, rec); err != nil && m.logger != nil {
		m.logger.Error("failed to persist refreshed token", "error", err)
	}
}

// OnUnauthorized discards the stored session and runs the sign-out hook.
func (m *Manager) OnUnauthorized(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil && m.logger != nil {
		m.logger.Error("failed to clear session", "error", err)
	}
	if m.logger != nil {
		m.logger.Info("session signed out")
	}
	if m.onSignedOut != nil {
		m.onSignedOut()
	}
}

// Login persists rec and seeds the client with it.
func (m *Manager) Login(ctx context.Context, seeder Seeder, rec Record) error {
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return errors.New("session record holds no token")
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return err
	}
	seeder.SetAccessToken(rec.AccessToken)
	seeder.SetRefreshToken(rec.RefreshToken)
	return nil
}

// Restore seeds the client with the stored session. It returns ErrNoSession
// when there is nothing to restore.
func (m *Manager) Restore(ctx context.Context, seeder Seeder) error {
	rec, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	seeder.SetAccessToken(rec.AccessToken)
	seeder.SetRefreshToken(rec.RefreshToken)
	if m.logger != nil {
		m.logger.Debug("session restored", "has_refresh_token", rec.RefreshToken != "")
	}
	return nil
}

// Logout clears the client's tokens and the stored session. The sign-out
// hook is not run; it is reserved for sessions the client lost.
func (m *Manager) Logout(ctx context.Context, seeder Seeder) error {
	seeder.SetAccessToken("")
	seeder.SetRefreshToken("")
	return m.store.Clear(ctx)
}
