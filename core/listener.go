package core

import "context"

// SessionListener is the session layer seen from the transport core.
// All methods are best-effort hooks and must not block for long.
type SessionListener interface {
	// RefreshToken supplies a refresh token when the client holds none.
	// ok is false when no refresh token is available.
	RefreshToken(ctx context.Context) (token string, ok bool)

	// OnTokenRefresh receives every newly refreshed access token.
	OnTokenRefresh(ctx context.Context, tok Token)

	// OnUnauthorized is called at most once per failed-session transition:
	// when no refresh token exists or the refresh itself failed.
	OnUnauthorized(ctx context.Context)
}

// ListenerFuncs adapts plain callbacks to SessionListener.
// Nil fields are skipped.
type ListenerFuncs struct {
	GetRefreshToken func() (string, bool)
	TokenRefreshed  func(accessToken string)
	Unauthorized    func()
}

func (f ListenerFuncs) RefreshToken(context.Context) (string, bool) {
	if f.GetRefreshToken == nil {
		return "", false
	}
	return f.GetRefreshToken()
}

func (f ListenerFuncs) OnTokenRefresh(_ context.Context, tok Token) {
	if f.TokenRefreshed != nil {
		f.TokenRefreshed(tok.AccessToken)
	}
}

func (f ListenerFuncs) OnUnauthorized(context.Context) {
	if f.Unauthorized != nil {
		f.Unauthorized()
	}
}

// Listeners fans notifications out to every listener in order. RefreshToken
// returns the first token any listener can supply.
type Listeners []SessionListener

func (ls Listeners) RefreshToken(ctx context.Context) (string, bool) {
	for _, l := range ls {
		if tok, ok := l.RefreshToken(ctx); ok && tok != "" {
			return tok, true
		}
	}
	return "", false
}

func (ls Listeners) OnTokenRefresh(ctx context.Context, tok Token) {
	for _, l := range ls {
		l.OnTokenRefresh(ctx, tok)
	}
}

func (ls Listeners) OnUnauthorized(ctx context.Context) {
	for _, l := range ls {
		l.OnUnauthorized(ctx)
	}
}
