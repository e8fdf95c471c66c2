package nvidia

import (
	"cicerone/pkg/config"
	"cicerone/pkg/llm/openai"
	"cicerone/pkg/request"
)

const nvidiaBaseURL = "https://integrate.api.nvidia.com/v1"

// NewClient creates a new NVIDIA NIM adapter using the generic OpenAI client.
func NewClient(cfg *config.ProviderConfig, rc *request.Client) *openai.Client {
	return openai.NewClient("NVIDIA", config.TagNVIDIA, nvidiaBaseURL, cfg, rc)
}
