package stubapi

import (
	"errors"
	"time"
)

// DefaultAccessTTL is the lifetime of minted access tokens.
const DefaultAccessTTL = 15 * time.Minute

// Option configures the Server.
type Option func(*Server) error

// Logger defines an optional logging interface compatible with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WithSecret sets the HS256 signing key. A random key is used by default.
func WithSecret(secret []byte) Option {
	return func(s *Server) error {
		if len(secret) < 32 {
			return errors.New("secret must be at least 32 bytes")
		}
		s.tokens.secret = append([]byte(nil), secret...)
		return nil
	}
}

// WithAccessTTL sets the lifetime of access tokens.
//
// Default: 15 minutes
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) error {
		if ttl <= 0 {
			return errors.New("access TTL must be positive")
		}
		s.tokens.ttl = ttl
		return nil
	}
}

// WithUser registers a username and password accepted by /auth/login.
func WithUser(username, password string) Option {
	return func(s *Server) error {
		if username == "" {
			return errors.New("username cannot be empty")
		}
		s.users[username] = password
		return nil
	}
}

// WithClock replaces the time source used to mint and verify tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.tokens.now = now
		return nil
	}
}

// WithLogger sets an optional logger for the server.
func WithLogger(logger Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}
