package apiclient

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/buildwise/apiclient/v3/core"
)

// Option configures the Client.
// Returns error for validation failures.
type Option func(*Client) error

// WithBaseURL sets the absolute URL every request path is resolved against (REQUIRED).
// A path component is kept, so "https://api.example.com/api" and "/projects"
// resolve to "https://api.example.com/api/projects".
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(baseURL) == "" {
			return ErrBaseURLMissing
		}
		c.rawBaseURL = baseURL
		return nil
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
// Zero disables retries.
//
// Default: 3
func WithMaxRetries(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("max retries cannot be negative")
		}
		c.retry.MaxRetries = n
		return nil
	}
}

// WithRetryDelay sets the base backoff delay. Retry n waits delay × 2^n.
//
// Default: 1000ms
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("retry delay cannot be negative")
		}
		c.retry.BaseDelay = d
		return nil
	}
}

// WithOnUnauthorized sets a hook invoked once when the session can no longer
// be recovered, either because no refresh token exists or the refresh failed.
// The hook must not block; the failed request still returns its error.
func WithOnUnauthorized(fn func()) Option {
	return func(c *Client) error {
		if fn == nil {
			return errors.New("onUnauthorized cannot be nil")
		}
		c.callbacks.Unauthorized = fn
		return nil
	}
}

// WithRefreshTokenGetter sets the source of the refresh token used when the
// client holds none itself.
func WithRefreshTokenGetter(fn func() (string, bool)) Option {
	return func(c *Client) error {
		if fn == nil {
			return errors.New("refresh token getter cannot be nil")
		}
		c.callbacks.GetRefreshToken = fn
		return nil
	}
}

// WithOnTokenRefresh sets a hook that receives every newly refreshed access token.
func WithOnTokenRefresh(fn func(token string)) Option {
	return func(c *Client) error {
		if fn == nil {
			return errors.New("onTokenRefresh cannot be nil")
		}
		c.callbacks.TokenRefreshed = fn
		return nil
	}
}

// WithSessionListener registers a session layer. It may be used more than
// once; listeners are notified in registration order after the callback
// options.
func WithSessionListener(l core.SessionListener) Option {
	return func(c *Client) error {
		if l == nil {
			return errors.New("session listener cannot be nil")
		}
		c.listeners = append(c.listeners, l)
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for every request, refresh calls included.
//
// Default: &http.Client{Timeout: 30 * time.Second}
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("HTTP client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRefreshPath sets the refresh endpoint, relative to the base URL.
//
// Default: "/auth/refresh"
func WithRefreshPath(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return errors.New("refresh path cannot be empty")
		}
		c.refreshPath = path
		return nil
	}
}

// WithRefreshTimeout bounds each refresh call. It applies even when the
// request that started the refresh is canceled.
//
// Default: 10 seconds
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("refresh timeout must be positive")
		}
		c.refreshTimeout = d
		return nil
	}
}

// WithProactiveRefresh refreshes the access token before sending a request
// when the token is known to expire within skew. Opaque tokens without a
// known expiry are only refreshed after a 401.
//
// Default: disabled
func WithProactiveRefresh(skew time.Duration) Option {
	return func(c *Client) error {
		if skew <= 0 {
			return errors.New("proactive refresh skew must be positive")
		}
		c.proactiveSkew = skew
		return nil
	}
}

// WithRateLimiter makes every attempt, replays included, wait for the limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) error {
		if l == nil {
			return errors.New("rate limiter cannot be nil")
		}
		c.limiter = l
		return nil
	}
}

// WithLogger sets an optional logger for the client.
// The logger will be used throughout the request and refresh pipeline.
//
// The logger interface is compatible with log/slog.Logger and similar loggers.
//
// Example:
//
//	client, err := apiclient.New(
//	    apiclient.WithBaseURL(baseURL),
//	    apiclient.WithLogger(slog.Default()),
//	)
func WithLogger(logger Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink.
//
// Default: NoopMetrics
func WithMetrics(m Metrics) Option {
	return func(c *Client) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		c.metrics = m
		return nil
	}
}

// WithTracer sets the tracer. One span is opened per logical call.
//
// Default: NoopTracer
func WithTracer(t Tracer) Option {
	return func(c *Client) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		c.tracer = t
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
//
// Default: "apiclient-go"
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		c.userAgent = ua
		return nil
	}
}
