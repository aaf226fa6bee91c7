package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/buildwise/apiclient/v3/core"
)

// Request describes one logical call for Send.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is JSON-encoded unless it is a []byte, which is sent as is.
	// A nil Body sends no body.
	Body any

	// Anonymous sends the call without a bearer token and never answers a
	// 401 with a refresh. core.WithoutAuth on the context has the same effect.
	Anonymous bool
}

// Response is a successful (2xx) response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// envelope is the success wrapper of the remote service:
//
//	{"success": true, "data": {...}}
//
// A missing success field counts as success.
// Data stays raw so it can be decoded into the caller's type.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

// Decode unwraps the envelope and decodes its data into out. A body that is
// not wrapped is decoded whole. A nil out discards the data, but an envelope
// reporting failure still yields an *APIError.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		if out == nil {
			return nil
		}
		// Arrays, strings and numbers cannot be envelopes.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return decodeData(r.Body, out)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.failed() {
		return core.NewAPIError(r.Status, r.Body)
	}
	if out == nil {
		return nil
	}

	data := []byte(env.Data)
	if env.Success == nil && env.Data == nil {
		data = r.Body
	}
	return decodeData(data, out)
}

func decodeData(data []byte, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// Send runs r through the request pipeline and returns the raw response.
// Request failures are returned as *NetworkError or *APIError.
func (c *Client) Send(ctx context.Context, r *Request) (*Response, error) {
	if r == nil {
		return nil, errors.New("request cannot be nil")
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	requestID, ok := core.RequestIDFromContext(ctx)
	if !ok {
		requestID = c.newRequestID()
	}

	req := &pendingRequest{
		method:    method,
		path:      r.Path,
		query:     r.Query,
		body:      body,
		header:    r.Header,
		requestID: requestID,
		anonymous: r.Anonymous || core.SkipsAuth(ctx),
	}

	out, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Response{Status: out.status, Header: out.header, Body: out.body}, nil
}

// Do sends a JSON call and decodes the envelope data into out.
// body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Send(ctx, &Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Patch issues a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return encoded, nil
}
