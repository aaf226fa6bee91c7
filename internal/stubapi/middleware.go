package stubapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const subjectKey = "subject"

// bearerToken extracts the token from the Authorization header. An absent
// header yields an empty token and no error.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrInvalidAuthFormat
	}
	return parts[1], nil
}

// authenticate rejects requests without a valid access token and stores the
// token subject on the echo context.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c.Request())
		if err != nil {
			return err
		}
		if token == "" {
			return ErrTokenMissing
		}

		subject, err := s.tokens.verify(token)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("rejected access token", "path", c.Request().URL.Path, "error", err)
			}
			return err
		}

		c.Set(subjectKey, subject)
		return next(c)
	}
}

// injectFailures answers with the next queued failure status, if any.
func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.protectedCalls.Add(1)

		s.mu.Lock()
		status := 0
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if status == 0 {
			return next(c)
		}
		if s.logger != nil {
			s.logger.Debug("injecting failure", "status", status, "path", c.Request().URL.Path)
		}
		return newAPIError(status, codeInjected, http.StatusText(status))
	}
}
