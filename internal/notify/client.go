// Package notify forwards admitted tag reads to the backend as
// fire-and-forget HTTP GET requests.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxLoggedBody      = 256
)

// Client issues the outbound notification requests.
type Client struct {
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a notification client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildURL composes the notification URL: the resolved base, suffixed with
// the device's current address and the tag identifier.
func BuildURL(baseURL, deviceAddr, tagID string) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, deviceAddr, tagID)
}

// Notify performs one GET against url. It returns the response status and
// a truncated body for logging; any failure is reported to the caller but
// is never fatal to the tag pipeline.
func (c *Client) Notify(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("notify: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("notify: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("notify: read response: %w", err)
	}

	return resp.StatusCode, string(body), nil
}
