package groq

import (
	"cicerone/pkg/config"
	"cicerone/pkg/llm/openai"
	"cicerone/pkg/request"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewClient creates a new Groq adapter using the generic OpenAI client.
func NewClient(cfg *config.ProviderConfig, rc *request.Client) *openai.Client {
	return openai.NewClient("Groq", config.TagGroq, groqBaseURL, cfg, rc)
}
