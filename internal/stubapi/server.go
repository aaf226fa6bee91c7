// Package stubapi is an in-process fake of the remote API used by
// integration tests and cmd/stubapi. It mints HS256 access tokens, rotates
// nothing on refresh and can be told to fail the next protected calls.
package stubapi

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Server is the fake API. It implements http.Handler.
type Server struct {
	echo   *echo.Echo
	tokens *tokenIssuer
	logger Logger

	mu       sync.Mutex
	users    map[string]string
	sessions map[string]string // refresh token -> subject
	failures []int

	refreshCalls   atomic.Int64
	protectedCalls atomic.Int64
}

// New creates a Server with the provided options.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		tokens:   &tokenIssuer{ttl: DefaultAccessTTL, now: time.Now},
		users:    make(map[string]string),
		sessions: make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if s.tokens.secret == nil {
		s.tokens.secret = make([]byte, 32)
		if _, err := rand.Read(s.tokens.secret); err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.POST("/auth/login", s.login)
	e.POST("/auth/refresh", s.refresh)

	v1 := e.Group("/v1", s.injectFailures, s.authenticate)
	v1.GET("/*", s.read)
	v1.POST("/*", s.write)

	s.echo = e
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// IssueSession mints a session for subject without a login call.
func (s *Server) IssueSession(subject string) (access, refresh string, err error) {
	access, _, err = s.tokens.issue(subject)
	if err != nil {
		return "", "", err
	}
	refresh = uuid.NewString()

	s.mu.Lock()
	s.sessions[refresh] = subject
	s.mu.Unlock()

	return access, refresh, nil
}

// RevokeSessions invalidates every issued refresh token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// FailNext makes the next n protected calls answer with status.
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.failures = append(s.failures, status)
	}
}

// RefreshCalls returns how many refresh requests were received.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// ProtectedCalls returns how many /v1 requests were received.
func (s *Server) ProtectedCalls() int64 {
	return s.protectedCalls.Load()
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeBadRequest, "malformed login request")
	}

	s.mu.Lock()
	password, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || password != req.Password {
		return newAPIError(http.StatusUnauthorized, codeInvalidCredentials, "invalid username or password")
	}

	access, refresh, err := s.IssueSession(req.Username)
	if err != nil {
		return err
	}

	s.debug("login", "subject", req.Username)
	return c.JSON(http.StatusOK, envelope{Success: true, Data: tokenData{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.ttl / time.Second),
	}})
}

func (s *Server) refresh(c echo.Context) error {
	s.refreshCalls.Add(1)

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return newAPIError(http.StatusBadRequest, codeBadRequest, "refresh_token is required")
	}

	s.mu.Lock()
	subject, ok := s.sessions[req.RefreshToken]
	s.mu.Unlock()
	if !ok {
		return newAPIError(http.StatusUnauthorized, codeInvalidRefreshToken, "refresh token is invalid or revoked")
	}

	access, _, err := s.tokens.issue(subject)
	if err != nil {
		return err
	}

	s.debug("refresh", "subject", subject)
	return c.JSON(http.StatusOK, envelope{Success: true, Data: tokenData{
		AccessToken: access,
		ExpiresIn:   int64(s.tokens.ttl / time.Second),
	}})
}

func (s *Server) read(c echo.Context) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: map[string]any{
		"method":  c.Request().Method,
		"path":    "/" + c.Param("*"),
		"subject": c.Get(subjectKey),
		"query":   c.QueryParams(),
	}})
}

func (s *Server) write(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return newAPIError(http.StatusBadRequest, codeBadRequest, "unreadable body")
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: map[string]any{
		"method":  c.Request().Method,
		"path":    "/" + c.Param("*"),
		"subject": c.Get(subjectKey),
		"body":    strings.TrimSpace(string(body)),
	}})
}

func (s *Server) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
