package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cicerone/pkg/config"
	"cicerone/pkg/creds"
	"cicerone/pkg/llm"
	"cicerone/pkg/logging"
	"cicerone/pkg/request"
)

const (
	defaultTimeout = 30 * time.Second
	openAIBaseURL  = "https://api.openai.com/v1"
)

// Client implements llm.Provider for any OpenAI-compatible API. The named
// wrapper packages (groq, nvidia, deepseek, perplexity) reuse it with their
// own endpoints.
type Client struct {
	name string
	tag  string
	base string
	cfg  *config.ProviderConfig
	rc   *request.Client
}

// Request follows the standard OpenAI Chat Completions format.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response follows the standard Chat Completions response format.
type Response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates a chat-completions adapter. The default base URL applies
// when neither configuration nor the request scope names an endpoint.
func NewClient(name, tag, defaultBaseURL string, cfg *config.ProviderConfig, rc *request.Client) *Client {
	return &Client{
		name: name,
		tag:  tag,
		base: strings.TrimSuffix(defaultBaseURL, "/"),
		cfg:  cfg,
		rc:   rc,
	}
}

// NewOpenAI creates the adapter for OpenAI itself.
func NewOpenAI(cfg *config.ProviderConfig, rc *request.Client) *Client {
	return NewClient("OpenAI", config.TagOpenAI, openAIBaseURL, cfg, rc)
}

func (c *Client) Name() string { return c.name }

// IsAvailable reports whether this provider can serve the given scope.
func (c *Client) IsAvailable(scope *creds.Scope) bool {
	return scope.Allows(c.tag, c.cfg)
}

func (c *Client) Generate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.GenerationPayload, error) {
	raw, err := c.chat(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeGeneration(raw)
}

func (c *Client) Validate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.ValidationPayload, error) {
	raw, err := c.chat(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeValidation(raw)
}

func (c *Client) Synthesize(ctx context.Context, scope *creds.Scope, prompt string) (*llm.SynthesisPayload, error) {
	raw, err := c.chat(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeSynthesis(raw)
}

// chat performs a single completion call and returns the message content.
func (c *Client) chat(ctx context.Context, scope *creds.Scope, prompt string) (string, error) {
	key := scope.Key(c.tag, c.cfg)
	if key == "" {
		return "", fmt.Errorf("%s: api key is missing", c.tag)
	}
	model := scope.Model(c.tag, c.cfg)
	if model == "" {
		return "", fmt.Errorf("%s: no model configured", c.tag)
	}
	base := scope.Endpoint(c.tag, c.cfg)
	if base == "" {
		base = c.base
	}
	if base == "" {
		return "", fmt.Errorf("%s: no endpoint configured", c.tag)
	}

	oreq := Request{
		Model:     model,
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
	}
	body, err := json.Marshal(oreq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := time.Duration(c.cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := map[string]string{
		"Authorization": "Bearer " + key,
		"Content-Type":  "application/json",
	}

	u := strings.TrimSuffix(base, "/") + "/chat/completions"
	start := time.Now()
	respBody, err := c.rc.PostWithHeaders(ctx, u, body, headers)
	if err != nil {
		return "", err
	}

	var oresp Response
	if err := json.Unmarshal(respBody, &oresp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if oresp.Error != nil {
		return "", fmt.Errorf("%s api error: %s (%s)", c.tag, oresp.Error.Message, oresp.Error.Type)
	}

	if len(oresp.Choices) == 0 {
		return "", fmt.Errorf("%s api returned no choices", c.tag)
	}

	content := oresp.Choices[0].Message.Content
	logging.LLMLogger.Info("LLM call complete",
		"provider", c.name, "model", model, "elapsed", time.Since(start))
	logging.Trace(logging.LLMLogger, "LLM exchange",
		"provider", c.name, "prompt", prompt, "response", content)
	return content, nil
}
