package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// EnvAnthropicAPIKey holds the Messages API key
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"

	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultEndpoint  = "https://api.anthropic.com/v1/messages"
	DefaultMaxTokens = 512
	anthropicVersion = "2023-06-01"
)

// ClaudeOptions overrides the ClaudeClient defaults
type ClaudeOptions struct {
	Model     string
	Endpoint  string
	MaxTokens int
	Timeout   time.Duration
}

// ClaudeClient calls the Anthropic Messages API. Each Generate is a single
// attempt; transient failures come back as *RetryableError for the caller's
// retry policy.
type ClaudeClient struct {
	apiKey     string
	model      string
	endpoint   string
	maxTokens  int
	httpClient *http.Client
}

// NewClaudeClient creates a client. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewClaudeClient(apiKey string, opts ClaudeOptions) (*ClaudeClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvAnthropicAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, EnvAnthropicAPIKey)
	}
	c := &ClaudeClient{
		apiKey:    apiKey,
		model:     DefaultModel,
		endpoint:  DefaultEndpoint,
		maxTokens: DefaultMaxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	if opts.Model != "" {
		c.model = opts.Model
	}
	if opts.Endpoint != "" {
		c.endpoint = opts.Endpoint
	}
	if opts.MaxTokens > 0 {
		c.maxTokens = opts.MaxTokens
	}
	if opts.Timeout > 0 {
		c.httpClient.Timeout = opts.Timeout
	}
	return c, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate asks the model to situate req.Chunk and parses its answer
func (c *ClaudeClient) Generate(ctx context.Context, req Request) (*Result, error) {
	text, err := c.complete(ctx, BuildPrompt(req))
	if err != nil {
		return nil, err
	}
	return ParseResponse(text)
}

func (c *ClaudeClient) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &RetryableError{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: empty response from claude", ErrMalformedResponse)
}

// Model returns the model name
func (c *ClaudeClient) Model() string {
	return c.model
}

// Close releases resources
func (c *ClaudeClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
