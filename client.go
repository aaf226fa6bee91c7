package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/buildwise/apiclient/v3/core"
)

const (
	// DefaultRefreshPath is the refresh endpoint relative to the base URL.
	DefaultRefreshPath = "/auth/refresh"

	// DefaultRequestTimeout is the fixed timeout of every request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultUserAgent is sent when WithUserAgent is not used.
	DefaultUserAgent = "apiclient-go"
)

// Client is the authenticated transport for the remote API.
//
// A Client owns its credentials and its refresh coordination state; two
// clients never share either. All methods are safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	refreshPath    string
	refreshTimeout time.Duration
	retry          core.RetryPolicy
	proactiveSkew  time.Duration
	limiter        *rate.Limiter
	userAgent      string

	creds       *core.Credentials
	coordinator *core.Coordinator
	listeners   core.Listeners

	logger  Logger
	metrics Metrics
	tracer  Tracer

	now          func() time.Time
	newRequestID func() string

	// Temporary fields used during construction
	rawBaseURL string
	callbacks  core.ListenerFuncs
}

// Logger defines an optional logging interface compatible with log/slog.
// This is the same interface used by core for consistent logging across the stack.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New constructs a new Client with the supplied options.
// WithBaseURL is required; everything else has a default.
//
// Example:
//
//	client, err := apiclient.New(
//	    apiclient.WithBaseURL("https://api.example.com/v1"),
//	    apiclient.WithMaxRetries(3),
//	    apiclient.WithOnUnauthorized(func() { sessions.SignOut() }),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create client: %v", err)
//	}
func New(opts ...Option) (*Client, error) {
	c := &Client{
		refreshPath:    DefaultRefreshPath,
		refreshTimeout: core.DefaultRefreshTimeout,
		retry:          core.DefaultRetryPolicy(),
		userAgent:      DefaultUserAgent,
		creds:          &core.Credentials{},
		now:            time.Now,
		newRequestID:   uuid.NewString,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	c.applyDefaults()

	if err := c.createCoordinator(); err != nil {
		return nil, fmt.Errorf("failed to create refresh coordinator: %w", err)
	}

	return c, nil
}

// validate ensures all required fields are set
func (c *Client) validate() error {
	if c.rawBaseURL == "" {
		return ErrBaseURLMissing
	}

	u, err := url.Parse(c.rawBaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBaseURLInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrBaseURLInvalid, c.rawBaseURL)
	}
	c.baseURL = u

	return c.retry.Validate()
}

// applyDefaults sets default values for optional fields not set by options
func (c *Client) applyDefaults() {
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if c.metrics == nil {
		c.metrics = &NoopMetrics{}
	}
	if c.tracer == nil {
		c.tracer = &NoopTracer{}
	}
	if c.callbacks.GetRefreshToken != nil || c.callbacks.TokenRefreshed != nil || c.callbacks.Unauthorized != nil {
		c.listeners = append(core.Listeners{c.callbacks}, c.listeners...)
	}
}

// createCoordinator creates the refresh coordinator bound to this client's
// credentials and listeners.
func (c *Client) createCoordinator() error {
	opts := []core.Option{
		core.WithRefreshFunc(c.exchange),
		core.WithGeneration(c.creds.Generation),
		core.WithCommit(c.commit),
		core.WithRefreshTimeout(c.refreshTimeout),
	}
	if c.logger != nil {
		opts = append(opts, core.WithLogger(c.logger))
	}

	coordinator, err := core.New(opts...)
	if err != nil {
		return err
	}
	c.coordinator = coordinator
	return nil
}

// commit stores a refreshed token and notifies the session layer. A token
// refreshed for credentials that were since replaced or cleared is dropped.
func (c *Client) commit(ctx context.Context, generation uint64, tok core.Token) error {
	if !c.creds.StoreIf(generation, tok) {
		if c.logger != nil {
			c.logger.Info("discarding refreshed token, credentials changed during refresh")
		}
		return core.ErrSessionChanged
	}
	c.listeners.OnTokenRefresh(ctx, tok)
	return nil
}

// SetAccessToken seeds or replaces the access token. An empty token clears it.
func (c *Client) SetAccessToken(token string) {
	c.creds.SetAccessToken(token)
}

// SetRefreshToken seeds or replaces the refresh token. An empty token clears it.
func (c *Client) SetRefreshToken(token string) {
	c.creds.SetRefreshToken(token)
}

// AccessToken returns the access token currently attached to requests.
func (c *Client) AccessToken() string {
	return c.creds.AccessToken()
}

// Credentials returns a copy of the credentials held by the client.
func (c *Client) Credentials() core.Snapshot {
	return c.creds.Snapshot()
}

// RetryPolicy returns the transient-failure policy of the client.
func (c *Client) RetryPolicy() core.RetryPolicy {
	return c.retry
}

// Reauthenticate returns an access token to replace sentToken after the
// remote side rejected it.
//
// If another caller has already replaced sentToken, the current token is
// returned without a refresh call. Otherwise a refresh is coordinated with
// every other in-flight caller. When no refresh token is available or the
// refresh fails, the access token is cleared and the session listeners are
// told the session is unauthorized.
func (c *Client) Reauthenticate(ctx context.Context, sentToken string) (string, error) {
	if current := c.creds.AccessToken(); sentToken != "" && current != "" && current != sentToken {
		if c.logger != nil {
			c.logger.Debug("access token already replaced, skipping refresh")
		}
		return current, nil
	}

	refreshToken, ok := c.refreshToken(ctx)
	if !ok {
		c.invalidate(ctx, "no refresh token available")
		return "", core.ErrNoRefreshToken
	}

	tok, err := c.coordinator.Refresh(ctx, refreshToken)
	if err != nil {
		// The caller gave up waiting; the session itself may be fine.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", err
		}
		// The owner seeded or cleared the session meanwhile; that state wins.
		if errors.Is(err, core.ErrSessionChanged) {
			if current := c.creds.AccessToken(); current != "" && current != sentToken {
				return current, nil
			}
			return "", err
		}
		c.invalidate(ctx, "refresh failed")
		return "", err
	}

	return tok.AccessToken, nil
}

// refreshToken prefers the stored refresh token over the session listeners.
func (c *Client) refreshToken(ctx context.Context) (string, bool) {
	if rt := c.creds.RefreshToken(); rt != "" {
		return rt, true
	}
	return c.listeners.RefreshToken(ctx)
}

// invalidate clears the access token and notifies the session listeners
// once per failed-session transition.
func (c *Client) invalidate(ctx context.Context, reason string) {
	if !c.creds.Invalidate() {
		return
	}
	if c.logger != nil {
		c.logger.Warn("session invalidated", "reason", reason)
	}
	c.metrics.IncCounter(metricUnauthorized, map[string]string{"reason": reason})
	c.listeners.OnUnauthorized(ctx)
}

// url joins path onto the base URL, keeping any base path prefix.
func (c *Client) url(path string, query url.Values) string {
	base := strings.TrimRight(c.baseURL.String(), "/")
	u := base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}
