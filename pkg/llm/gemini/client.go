// Package gemini implements the Gemini adapter on the official genai SDK.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"cicerone/pkg/config"
	"cicerone/pkg/creds"
	"cicerone/pkg/llm"
	"cicerone/pkg/logging"
)

const (
	defaultTimeout = 30 * time.Second
	defaultModel   = "gemini-2.0-flash"
)

// Client implements llm.Provider for Google Gemini.
type Client struct {
	cfg        *config.ProviderConfig
	baseClient *genai.Client
}

// NewClient creates a new Gemini adapter. Construction never fails: without a
// working key the adapter simply reports itself unavailable, and a
// per-request user key can still activate it.
func NewClient(ctx context.Context, cfg *config.ProviderConfig) *Client {
	c := &Client{cfg: cfg}
	if cfg.Key == "" {
		return c
	}

	client, err := newGenaiClient(ctx, cfg.Key, cfg.BaseURL)
	if err != nil {
		slog.Warn("Gemini client init failed", "error", err)
		return c
	}
	c.baseClient = client

	// Validation failures are logged but never block startup. A truly
	// invalid key or model surfaces on the first generation call.
	c.validateModel(ctx)
	return c
}

func newGenaiClient(ctx context.Context, key, baseURL string) (*genai.Client, error) {
	cc := &genai.ClientConfig{APIKey: key}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	return genai.NewClient(ctx, cc)
}

func (c *Client) Name() string { return "Gemini" }

// IsAvailable reports whether this provider can serve the given scope.
func (c *Client) IsAvailable(scope *creds.Scope) bool {
	return scope.Allows(config.TagGemini, c.cfg)
}

func (c *Client) Generate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.GenerationPayload, error) {
	raw, err := c.generate(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeGeneration(raw)
}

func (c *Client) Validate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.ValidationPayload, error) {
	raw, err := c.generate(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeValidation(raw)
}

func (c *Client) Synthesize(ctx context.Context, scope *creds.Scope, prompt string) (*llm.SynthesisPayload, error) {
	raw, err := c.generate(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeSynthesis(raw)
}

// generate performs one JSON-mode content call and returns the text.
func (c *Client) generate(ctx context.Context, scope *creds.Scope, prompt string) (string, error) {
	client, err := c.clientFor(ctx, scope)
	if err != nil {
		return "", err
	}

	model := scope.Model(config.TagGemini, c.cfg)
	if model == "" {
		model = defaultModel
	}

	timeout := time.Duration(c.cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gcfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if c.cfg.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), gcfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	logging.LLMLogger.Info("LLM call complete",
		"provider", "Gemini", "model", model, "elapsed", time.Since(start))
	logging.Trace(logging.LLMLogger, "LLM exchange",
		"provider", "Gemini", "prompt", prompt, "response", text)
	return text, nil
}

// clientFor returns the genai client for this request. A user-supplied key
// gets its own client so concurrent requests cannot share credentials.
func (c *Client) clientFor(ctx context.Context, scope *creds.Scope) (*genai.Client, error) {
	if scope.HasUserKey(config.TagGemini) {
		client, err := newGenaiClient(ctx, scope.Key(config.TagGemini, c.cfg), scope.Endpoint(config.TagGemini, c.cfg))
		if err != nil {
			return nil, fmt.Errorf("gemini: client for user key: %w", err)
		}
		return client, nil
	}
	if c.baseClient == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}
	return c.baseClient, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("candidate has no content")
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// validateModel checks that the configured model exists for the key. On
// failure it lists what is available to help the operator fix the config.
func (c *Client) validateModel(ctx context.Context) {
	name := c.cfg.Model
	if name == "" {
		name = defaultModel
	}
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}

	if _, err := c.baseClient.Models.Get(ctx, name, nil); err == nil {
		slog.Debug("Gemini model validation success", "model", name)
		return
	}

	iter, err := c.baseClient.Models.List(ctx, nil)
	if err != nil {
		slog.Warn("Gemini model validation skipped (list failed)", "error", err)
		return
	}

	var available []string
	for {
		m, err := iter.Next(ctx)
		if err == iterator.Done || err != nil {
			break
		}
		if strings.Contains(strings.ToLower(m.Name), "gemini") {
			available = append(available, m.Name)
		}
	}

	slog.Warn("Configured Gemini model not found", "configured", c.cfg.Model, "available", available)
}
