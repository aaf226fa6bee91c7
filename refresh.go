package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/buildwise/apiclient/v3/core"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshData struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// exchange is the bare refresh call handed to the coordinator. It carries no
// Authorization header and is never retried, so a failing refresh cannot
// trigger another refresh.
func (c *Client) exchange(ctx context.Context, refreshToken string) (tok core.Token, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		c.metrics.IncCounter(metricRefresh, map[string]string{"result": result})
	}()

	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.refreshPath, nil), bytes.NewReader(payload))
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id, ok := core.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Token{}, core.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return core.Token{}, core.NewNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Token{}, core.NewAPIError(resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return core.Token{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if env.failed() {
		return core.Token{}, core.NewAPIError(resp.StatusCode, body)
	}

	var data refreshData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return core.Token{}, fmt.Errorf("failed to decode refresh response: %w", err)
		}
	}

	tok = core.Token{AccessToken: data.AccessToken}
	if data.ExpiresIn > 0 {
		tok.ExpiresAt = c.now().Add(time.Duration(data.ExpiresIn) * time.Second)
	}
	return tok, nil
}
