package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"agentic_rag/backend/go/pkg/circuitbreaker"
)

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewClient creates a new Client. A nil breaker disables circuit breaking.
// The client itself sets no timeout; callers bound each request with its context.
func NewClient(breaker *circuitbreaker.Breaker) *Client {
	return &Client{
		httpClient: &http.Client{Transport: http.DefaultTransport},
		breaker:    breaker,
	}
}

// WithTimeout returns a client sharing the breaker whose requests abort after d.
func (c *Client) WithTimeout(d time.Duration) *Client {
	hc := *c.httpClient
	hc.Timeout = d
	return &Client{httpClient: &hc, breaker: c.breaker}
}

// Do executes an HTTP request with circuit breaker protection.
// It considers status codes >= 500 as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		// Treat server-side errors as failures for the circuit breaker,
		// but still hand the response to the caller.
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil && resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Breaker exposes the breaker state, nil when disabled.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

// PostJSON sends body to url as application/json.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}
