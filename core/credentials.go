package core

import (
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Token is the result of a successful refresh.
type Token struct {
	// AccessToken is the new bearer credential.
	AccessToken string

	// ExpiresAt is when the access token stops being valid. Zero means unknown.
	ExpiresAt time.Time
}

// Credentials is the instance-scoped holder of session credentials.
// The access token lives in memory only and is replaced, never merged, on
// every refresh. The zero value is ready to use.
type Credentials struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	// signedOut is set on the first invalidation of a session and reset by
	// any credential update, so the unauthorized hook fires once per transition.
	signedOut bool

	// generation advances on every change made by the owner or by an
	// invalidation. Refreshed tokens are stored only under the generation
	// they were requested in.
	generation uint64
}

// Snapshot is a point-in-time copy of Credentials.
type Snapshot struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AccessToken returns the current access token, or "" when none is held.
func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// RefreshToken returns the stored refresh token, or "" when none is held.
func (c *Credentials) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken
}

// Snapshot returns a copy of the current credentials.
func (c *Credentials) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		ExpiresAt:    c.expiresAt,
	}
}

// SetAccessToken replaces the access token. An empty token clears it.
// The expiry is derived from the token's exp claim when it is a JWT.
func (c *Credentials) SetAccessToken(token string) {
	expiresAt := ExpiryFromJWT(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	c.expiresAt = expiresAt
	c.signedOut = false
	c.generation++
}

// SetRefreshToken replaces the refresh token. An empty token clears it.
func (c *Credentials) SetRefreshToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshToken = token
	c.signedOut = false
	c.generation++
}

// Store commits a refreshed token. When the refresh response carried no
// expiry, the JWT exp claim is used instead.
func (c *Credentials) Store(tok Token) {
	expiresAt := tok.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = ExpiryFromJWT(tok.AccessToken)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = tok.AccessToken
	c.expiresAt = expiresAt
	c.signedOut = false
}

// Generation returns the current credential generation.
func (c *Credentials) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// StoreIf commits tok only if the credentials are still at generation. It
// reports whether the token was stored.
func (c *Credentials) StoreIf(generation uint64, tok Token) bool {
	expiresAt := tok.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = ExpiryFromJWT(tok.AccessToken)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.accessToken = tok.AccessToken
	c.expiresAt = expiresAt
	c.signedOut = false
	return true
}

// Invalidate clears the access token. It returns true only for the first
// invalidation since the credentials were last updated.
func (c *Credentials) Invalidate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.generation++
	if c.signedOut {
		return false
	}
	c.signedOut = true
	return true
}

// ExpiresWithin reports whether a held access token with a known expiry
// expires within d of now.
func (c *Credentials) ExpiresWithin(d time.Duration, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken == "" || c.expiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.expiresAt)
}

// ExpiryFromJWT returns the exp claim of token without verifying its
// signature. Opaque or malformed tokens yield the zero time.
func ExpiryFromJWT(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	parsed, err := jwt.ParseInsecure([]byte(token), jwt.WithValidate(false))
	if err != nil {
		return time.Time{}
	}

	exp, ok := parsed.Expiration()
	if !ok {
		return time.Time{}
	}
	return exp
}
