package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultUserAgent = "mealgen-upstream/1.0"
	maxResponseBytes = 4 << 20
)

// Completion is one prompt sent to the model.
type Completion struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

// ClientOption configures the client.
type ClientOption func(*ChatClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *ChatClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *ChatClient) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) ClientOption {
	return func(c *ChatClient) {
		c.model = model
	}
}

// WithRetry sets the throttling retry policy.
func WithRetry(r *Retry) ClientOption {
	return func(c *ChatClient) {
		c.retry = r
	}
}

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retry      *Retry
}

var _ Completer = (*ChatClient)(nil)

func NewChatClient(apiKey string, opts ...ClientOption) *ChatClient {
	c := &ChatClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		retry:      &Retry{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// APIError is a non-200 reply from the model API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("model API error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("model API error (status %d): %s", e.StatusCode, e.Message)
}

// Throttled reports whether the call may succeed if retried.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// parseAPIError reads the {"error": {...}} shape, falling back to the raw body.
func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Type = payload.Error.Type
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// Complete sends one user message and returns the first choice's text.
// Throttled replies are retried under the client's policy.
func (c *ChatClient) Complete(ctx context.Context, comp Completion) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: comp.Prompt}},
		Temperature: comp.Temperature,
		MaxTokens:   comp.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var text string
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = c.send(ctx, body)
		return callErr
	})
	return text, err
}

func (c *ChatClient) send(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", defaultUserAgent)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}
