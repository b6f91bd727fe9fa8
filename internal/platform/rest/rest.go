package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteError wraps any non-2xx response from an external platform. Callers
// decide what a given status means; this layer never retries.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: status=%d body=%s", e.StatusCode, e.Body)
}

// HasStatus reports whether err carries a RemoteError with the given status
// code, anywhere in its wrap chain.
func HasStatus(err error, code int) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == code
}

// Client is a minimal JSON-over-HTTP client shared by the platform adapters.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// BaseQuery is appended to every request (token-in-query auth styles).
	BaseQuery url.Values
	// BaseHeader is set on every request (token-in-header auth styles).
	BaseHeader http.Header
	// Authorize, when set, runs last and may attach per-request credentials.
	Authorize func(ctx context.Context, req *http.Request) error
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Do issues a request and decodes a JSON response into out (ignored when out
// is nil). Non-2xx responses are returned as *RemoteError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	merged := url.Values{}
	for k, vs := range c.BaseQuery {
		merged[k] = vs
	}
	for k, vs := range query {
		merged[k] = vs
	}
	if len(merged) > 0 {
		u += "?" + merged.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	for k, vs := range c.BaseHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Authorize != nil {
		if err := c.Authorize(ctx, req); err != nil {
			return err
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
