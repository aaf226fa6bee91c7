package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/buildwise/apiclient/v3/core"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 10 << 20

// pendingRequest is one logical call. It survives replays: the body is kept
// as bytes so every attempt can rebuild its own *http.Request.
type pendingRequest struct {
	method    string
	path      string
	query     url.Values
	body      []byte
	header    http.Header
	requestID string
	anonymous bool

	attempt core.Attempt

	// bearer overrides the stored access token for the next attempt only.
	bearer string
	// sentToken is the access token the last attempt carried.
	sentToken string
}

// outcome is what a single attempt produced. A non-nil err means no response
// was received and status, header and body are unset.
type outcome struct {
	status int
	header http.Header
	body   []byte
	err    error
}

func (o *outcome) succeeded() bool {
	return o.err == nil && o.status >= 200 && o.status < 300
}

// replayStage inspects a failed outcome. It reports true when the request
// should be sent again, or returns the error the call must end with.
type replayStage func(ctx context.Context, req *pendingRequest, out *outcome) (bool, error)

// execute runs the request pipeline:
//
//	attach-auth -> send -> classify -> refresh-and-replay -> backoff-and-replay -> transform
//
// Every error it returns from a received or missing response is a
// *core.APIError or a *core.NetworkError.
func (c *Client) execute(ctx context.Context, req *pendingRequest) (*outcome, error) {
	ctx, span := c.tracer.StartSpan(ctx, "apiclient "+req.method)
	defer span.Finish()
	span.SetTag("http.method", req.method)
	span.SetTag("http.path", req.path)
	span.SetTag("request.id", req.requestID)
	start := c.now()

	out, err := c.run(ctx, req)

	c.record(req, err, start)
	if out != nil {
		span.SetTag("http.status_code", out.status)
	}
	span.SetTag("retries", req.attempt.Retries)
	span.SetTag("auth_retried", req.attempt.AuthRetried)
	span.RecordError(err)

	return out, err
}

// run loops over attempts until a stage stops replaying.
func (c *Client) run(ctx context.Context, req *pendingRequest) (*outcome, error) {
	if !req.anonymous {
		c.refreshAhead(ctx)
	}

	stages := []replayStage{c.refreshAndReplay, c.backoffAndReplay}

	for {
		httpReq, err := c.build(ctx, req)
		if err != nil {
			return nil, err
		}

		out, err := c.send(ctx, httpReq)
		if err != nil {
			return nil, err
		}
		if out.succeeded() {
			return out, nil
		}

		replay := false
		for _, stage := range stages {
			replay, err = stage(ctx, req, out)
			if err != nil {
				return nil, err
			}
			if replay {
				break
			}
		}
		if !replay {
			return out, c.transform(out)
		}
	}
}

// build creates the *http.Request for one attempt and attaches auth.
func (c *Client) build(ctx context.Context, req *pendingRequest) (*http.Request, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.url(req.path, req.query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", req.requestID)

	c.attachAuth(httpReq, req)

	return httpReq, nil
}

// attachAuth sets the bearer token. A request without a token goes out
// unauthenticated rather than failing.
func (c *Client) attachAuth(httpReq *http.Request, req *pendingRequest) {
	if req.anonymous {
		req.sentToken = ""
		return
	}

	token := req.bearer
	req.bearer = ""
	if token == "" {
		token = c.creds.AccessToken()
	}

	req.sentToken = token
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
}

// send waits for the rate limiter, issues the request and reads the body.
// A transport failure is reported in the outcome, not as an error.
func (c *Client) send(ctx context.Context, httpReq *http.Request) (*outcome, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, core.NewNetworkError(err)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &outcome{err: err}, nil
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if errors.Is(err, ErrResponseTooLarge) {
		// A replay would receive the same body, so this is final.
		return nil, core.NewNetworkError(err)
	}
	if err != nil {
		return &outcome{err: fmt.Errorf("failed to read response body: %w", err)}, nil
	}

	return &outcome{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// readBody reads a response body of at most maxResponseBytes. A longer body
// fails with ErrResponseTooLarge instead of being truncated.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// refreshAndReplay answers the first 401 of an authenticated call with a
// coordinated refresh and replays the call with the new token.
func (c *Client) refreshAndReplay(ctx context.Context, req *pendingRequest, out *outcome) (bool, error) {
	if out.err != nil || out.status != http.StatusUnauthorized || req.anonymous || req.attempt.AuthRetried {
		return false, nil
	}
	req.attempt.AuthRetried = true

	c.metrics.SetGauge(metricRefreshWaiters, float64(c.coordinator.Waiting()), nil)

	token, err := c.Reauthenticate(ctx, req.sentToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, core.NewNetworkError(ctxErr)
		}
		if _, ok := core.AsAPIError(err); ok {
			return false, err
		}
		if _, ok := core.AsNetworkError(err); ok {
			return false, err
		}
		if c.logger != nil && !errors.Is(err, core.ErrNoRefreshToken) && !errors.Is(err, core.ErrSessionChanged) {
			c.logger.Warn("refresh did not produce a usable token", "error", err, "request_id", req.requestID)
		}
		// Nothing to replay with; the original 401 is the answer.
		return false, nil
	}

	if c.logger != nil {
		c.logger.Debug("replaying request after token refresh",
			"method", req.method, "path", req.path, "request_id", req.requestID)
	}
	req.bearer = token
	return true, nil
}

// backoffAndReplay retries transient failures with exponential backoff.
func (c *Client) backoffAndReplay(ctx context.Context, req *pendingRequest, out *outcome) (bool, error) {
	if out.err == nil && !core.IsRetryableStatus(out.status) {
		return false, nil
	}
	if !c.retry.Allows(req.attempt.Retries) {
		return false, nil
	}

	reason := retryReason(out)
	delay := c.retry.Delay(req.attempt.Retries)
	if c.logger != nil {
		c.logger.Info("retrying request",
			"method", req.method,
			"path", req.path,
			"reason", reason,
			"retry", req.attempt.Retries+1,
			"delay", delay,
			"request_id", req.requestID)
	}

	if err := c.retry.Wait(ctx, req.attempt.Retries); err != nil {
		return false, core.NewNetworkError(err)
	}

	req.attempt.Retries++
	c.metrics.IncCounter(metricRetries, map[string]string{"reason": reason})
	return true, nil
}

// transform turns a final failed outcome into the caller-facing error.
func (c *Client) transform(out *outcome) error {
	if out.err != nil {
		return core.NewNetworkError(out.err)
	}
	return core.NewAPIError(out.status, out.body)
}

// refreshAhead refreshes a token that is about to expire. Failures are only
// logged; a 401 still goes through refreshAndReplay.
func (c *Client) refreshAhead(ctx context.Context) {
	if c.proactiveSkew <= 0 || c.creds.AccessToken() == "" {
		return
	}
	if !c.creds.ExpiresWithin(c.proactiveSkew, c.now()) {
		return
	}

	refreshToken, ok := c.refreshToken(ctx)
	if !ok {
		return
	}

	if c.logger != nil {
		c.logger.Debug("access token expires soon, refreshing ahead of request")
	}
	if _, err := c.coordinator.Refresh(ctx, refreshToken); err != nil && c.logger != nil {
		c.logger.Warn("proactive token refresh failed", "error", err)
	}
}

func (c *Client) record(req *pendingRequest, err error, start time.Time) {
	result := "success"
	switch {
	case err == nil:
	case isNetworkError(err):
		result = "network_error"
	default:
		result = "api_error"
	}

	c.metrics.IncCounter(metricRequests, map[string]string{"method": req.method, "outcome": result})
	c.metrics.ObserveHistogram(metricRequestDuration, c.now().Sub(start).Seconds(), map[string]string{"method": req.method})

	if c.logger != nil && err != nil {
		c.logger.Debug("request failed",
			"method", req.method,
			"path", req.path,
			"error", err,
			"retries", req.attempt.Retries,
			"request_id", req.requestID)
	}
}

func retryReason(out *outcome) string {
	if out.err != nil {
		return "network"
	}
	return strconv.Itoa(out.status)
}

func isNetworkError(err error) bool {
	_, ok := core.AsNetworkError(err)
	return ok
}
