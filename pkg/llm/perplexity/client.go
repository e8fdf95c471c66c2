package perplexity

import (
	"cicerone/pkg/config"
	"cicerone/pkg/llm/openai"
	"cicerone/pkg/request"
)

// Perplexity serves Sonar models over the OpenAI chat completions format.
const perplexityBaseURL = "https://api.perplexity.ai"

// NewClient creates a new Perplexity adapter using the generic OpenAI client.
func NewClient(cfg *config.ProviderConfig, rc *request.Client) *openai.Client {
	return openai.NewClient("Perplexity", config.TagPerplexity, perplexityBaseURL, cfg, rc)
}
