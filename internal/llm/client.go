package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/reqctx"
)

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string
	Content string
}

// Request is what a worker or supervisor agent sends to an LLM.
type Request struct {
	Provider    string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is what comes back.
type Response struct {
	Model   string
	Content Content
	Usage   Usage
}

// Usage tracks token counts for the call, when the provider reports them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider generates a chat completion. Implemented by Client (the real
// multi-provider HTTP client) and by Stub (for tests).
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (*Response, error)
}

// KeyedProvider resolves a Provider bound to a request's BYOK credentials.
// *Client satisfies this; engine.Engine depends on the interface rather than
// *Client so tests can substitute a Stub-backed provider without a fake HTTP
// transport.
type KeyedProvider interface {
	WithKeys(keys reqctx.Keys) Provider
}

// baseURLs is the provider-to-endpoint map every worker/supervisor call
// resolves through.
var baseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"google":     "https://generativelanguage.googleapis.com/v1beta",
	"openrouter": "https://openrouter.ai/api/v1",
}

// Client is a zero-SDK HTTP client covering the OpenAI, Anthropic, Google
// and OpenRouter chat-completion APIs. Unlike a client built around one
// fixed API key, this one resolves credentials per call: a BYOK key from
// reqctx.Keys wins, falling back to the server-side default for that
// provider from config.Config.
type Client struct {
	httpClient *http.Client
	defaults   reqctx.Keys
	limiter    Limiter
}

// Limiter throttles a call keyed by (provider, apiKey) before it goes out
// the wire — internal/ratelimit.Registry satisfies this. Every LLM call,
// worker or supervisor, goes through it first.
type Limiter interface {
	Acquire(ctx context.Context, provider, apiKey string) error
}

// NewClient builds a Client whose server-side default credentials come from
// cfg. Per-call BYOK keys are supplied via ChatCompletion's reqctx.Keys
// argument path (see WithKeys). limiter may be nil to disable throttling
// (e.g. in tests that swap in a Stub instead of Client).
func NewClient(cfg *config.Config, limiter Limiter) *Client {
	return &Client{
		httpClient: &http.Client{},
		defaults: reqctx.Keys{
			OpenAI:    cfg.OpenAIAPIKey,
			Anthropic: cfg.AnthropicAPIKey,
			Google:    cfg.GoogleAPIKey,
		},
		limiter: limiter,
	}
}

// WithKeys returns a client-like Provider whose BYOK credentials take
// precedence over the server-side defaults baked in at construction. Worker
// and supervisor calls always go through this so a request's own keys never
// leak into a different request's call.
func (c *Client) WithKeys(keys reqctx.Keys) Provider {
	return &boundClient{client: c, keys: keys}
}

type boundClient struct {
	client *Client
	keys   reqctx.Keys
}

func (b *boundClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	apiKey := b.keys.ForProvider(req.Provider)
	if apiKey == "" {
		apiKey = b.client.defaults.ForProvider(req.Provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llm: no API key configured for provider %q", req.Provider)
	}

	baseURL, ok := baseURLs[req.Provider]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", req.Provider)
	}

	if b.client.limiter != nil {
		if err := b.client.limiter.Acquire(ctx, req.Provider, apiKey); err != nil {
			return nil, fmt.Errorf("llm: rate limit wait: %w", err)
		}
	}

	switch req.Provider {
	case "anthropic":
		return b.client.anthropicCompletion(ctx, baseURL, apiKey, req)
	case "google":
		return b.client.googleCompletion(ctx, baseURL, apiKey, req)
	default:
		return b.client.openAICompletion(ctx, baseURL, apiKey, req)
	}
}

func (c *Client) doRequest(ctx context.Context, method, url string, apiKey string, provider string, body io.Reader) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("llm: build request: %w", err)
	}

	switch provider {
	case "anthropic":
		httpReq.Header.Set("x-api-key", apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
	case "google":
		q := httpReq.URL.Query()
		q.Set("key", apiKey)
		httpReq.URL.RawQuery = q.Encode()
	default:
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("llm: read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func (c *Client) openAICompletion(ctx context.Context, baseURL, apiKey string, req Request) (*Response, error) {
	payload := struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
		Temperature float64   `json:"temperature,omitempty"`
	}{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Temperature: req.Temperature}

	body, _ := json.Marshal(payload)
	url := baseURL + "/chat/completions"

	data, status, err := c.doRequest(ctx, http.MethodPost, url, apiKey, req.Provider, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("llm: chat completion failed (status %d): %s", status, string(data))
	}

	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return &Response{
		Model:   resp.Model,
		Content: TextContent(text),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) anthropicCompletion(ctx context.Context, baseURL, apiKey string, req Request) (*Response, error) {
	var systemPrompt string
	var messages []map[string]string
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemPrompt = m.Content
			continue
		}
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":      req.Model,
		"max_tokens": req.MaxTokens,
		"messages":   messages,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, _ := json.Marshal(payload)
	url := baseURL + "/messages"

	data, status, err := c.doRequest(ctx, http.MethodPost, url, apiKey, req.Provider, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("llm: chat completion failed (status %d): %s", status, string(data))
	}

	var resp struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}

	blocks := make([]Block, len(resp.Content))
	for i, b := range resp.Content {
		blocks[i] = Block{Type: b.Type, Text: b.Text}
	}

	return &Response{
		Model:   resp.Model,
		Content: BlocksContent(blocks),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) googleCompletion(ctx context.Context, baseURL, apiKey string, req Request) (*Response, error) {
	var contents []map[string]any
	for _, m := range req.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "system" {
			// Google has no system role on this endpoint; send the system
			// prompt as a user turn of its own instead of dropping it.
			role = "user"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}

	payload := map[string]any{"contents": contents}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/models/%s:generateContent", baseURL, req.Model)

	data, status, err := c.doRequest(ctx, http.MethodPost, url, apiKey, req.Provider, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("llm: chat completion failed (status %d): %s", status, string(data))
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}

	text := ""
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}

	return &Response{Model: req.Model, Content: TextContent(text)}, nil
}
