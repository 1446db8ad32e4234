// Package inference is the HTTP boundary to the remote generator endpoints.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/mealgen/internal/envelope"
)

const (
	defaultUserAgent = "mealgen/1.0"
	maxResponseBytes = 1 << 20
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client posts request payloads to generator endpoints and unwraps the reply.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client whose transport is instrumented with otelhttp.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate POSTs payload as JSON to endpoint. A 2xx reply is unwrapped into a
// Payload; unwrap failures come back as *envelope.Error. Anything else is
// returned as an *envelope.Fault carrying the status and body so the caller
// can classify it.
func (c *Client) Generate(ctx context.Context, endpoint string, payload any) (*envelope.Payload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &envelope.Fault{
			Message: "Could not reach the generator service",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &envelope.Fault{
			StatusCode: resp.StatusCode,
			Message:    "Failed to read the generator response",
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &envelope.Fault{
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	return envelope.Unwrap(respBody)
}
