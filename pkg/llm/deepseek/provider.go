package deepseek

import (
	"cicerone/pkg/config"
	"cicerone/pkg/llm/openai"
	"cicerone/pkg/request"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewClient creates a new DeepSeek adapter using the generic OpenAI client.
func NewClient(cfg *config.ProviderConfig, rc *request.Client) *openai.Client {
	return openai.NewClient("DeepSeek", config.TagDeepSeek, deepseekBaseURL, cfg, rc)
}
