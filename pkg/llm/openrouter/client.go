// Package openrouter implements the streaming aggregator adapter. Responses
// arrive as server-sent events; deltas are accumulated until the [DONE]
// sentinel and reasoning output doubles as a fallback when the content
// channel stays empty.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cicerone/pkg/config"
	"cicerone/pkg/creds"
	"cicerone/pkg/llm"
	"cicerone/pkg/logging"
)

const (
	defaultTimeout = 120 * time.Second
	defaultBaseURL = "https://openrouter.ai/api/v1"

	// SSE frames are small, but reasoning models can emit long ones.
	scanBufInitial = 64 * 1024
	scanBufMax     = 1024 * 1024
)

// Client implements llm.Provider for OpenRouter.
type Client struct {
	cfg  *config.ProviderConfig
	http *http.Client
}

// NewClient creates a new OpenRouter adapter. Streaming reads manage their
// own deadlines, so the underlying client carries no global timeout.
func NewClient(cfg *config.ProviderConfig) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

type streamRequest struct {
	Model     string          `json:"model"`
	Messages  []streamMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream"`
}

type streamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			Text             string `json:"text"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Name() string { return "OpenRouter" }

// IsAvailable reports whether this provider can serve the given scope.
func (c *Client) IsAvailable(scope *creds.Scope) bool {
	return scope.Allows(config.TagOpenRouter, c.cfg)
}

func (c *Client) Generate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.GenerationPayload, error) {
	raw, err := c.stream(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeGeneration(raw)
}

func (c *Client) Validate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.ValidationPayload, error) {
	raw, err := c.stream(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeValidation(raw)
}

func (c *Client) Synthesize(ctx context.Context, scope *creds.Scope, prompt string) (*llm.SynthesisPayload, error) {
	raw, err := c.stream(ctx, scope, prompt)
	if err != nil {
		return nil, err
	}
	return llm.DecodeSynthesis(raw)
}

// stream performs one streaming completion call and returns the aggregated
// text: content if any arrived, then text, then the reasoning buffer.
func (c *Client) stream(ctx context.Context, scope *creds.Scope, prompt string) (string, error) {
	tag := config.TagOpenRouter
	key := scope.Key(tag, c.cfg)
	if key == "" {
		return "", fmt.Errorf("%s: api key is missing", tag)
	}
	model := scope.Model(tag, c.cfg)
	if model == "" {
		return "", fmt.Errorf("%s: no model configured", tag)
	}
	base := scope.Endpoint(tag, c.cfg)
	if base == "" {
		base = defaultBaseURL
	}

	sreq := streamRequest{
		Model:     model,
		Messages:  []streamMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
		Stream:    true,
	}
	body, err := json.Marshal(sreq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := time.Duration(c.cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := strings.TrimSuffix(base, "/") + "/chat/completions"
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var content, text, reasoning strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, scanBufInitial), scanBufMax)
	for scanner.Scan() {
		line := scanner.Text()
		// SSE comments (": OPENROUTER PROCESSING") and blank keep-alives
		// are not data frames.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Debug("Skipping malformed stream frame", "provider", "openrouter", "error", err)
			continue
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("openrouter stream error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			text.WriteString(choice.Delta.Text)
			reasoning.WriteString(choice.Delta.ReasoningContent)
			reasoning.WriteString(choice.Delta.Reasoning)
		}
	}
	if err := scanner.Err(); err != nil {
		// A truncated stream can still hold a usable payload; the balanced
		// extractor deals with the missing tail.
		if content.Len() == 0 && text.Len() == 0 && reasoning.Len() == 0 {
			return "", fmt.Errorf("openrouter stream read: %w", err)
		}
		slog.Warn("Stream ended early, using partial buffers", "provider", "openrouter", "error", err)
	}

	var result string
	switch {
	case content.Len() > 0:
		result = content.String()
	case text.Len() > 0:
		result = text.String()
	case reasoning.Len() > 0:
		result = reasoning.String()
	default:
		return "", fmt.Errorf("openrouter: stream produced no output")
	}

	logging.LLMLogger.Info("LLM call complete",
		"provider", "OpenRouter", "model", model, "elapsed", time.Since(start))
	logging.Trace(logging.LLMLogger, "LLM exchange",
		"provider", "OpenRouter", "prompt", prompt, "response", result)
	return result, nil
}
