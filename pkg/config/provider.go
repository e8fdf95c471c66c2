package config

import (
	"strings"
	"time"
)

// Provider tags. These are the names requests use in userApiKeys and the
// names reported in response metadata.
const (
	TagOpenAI     = "openai"
	TagGemini     = "gemini"
	TagGroq       = "groq"
	TagNVIDIA     = "nvidia"
	TagDeepSeek   = "deepseek"
	TagPerplexity = "perplexity"
	TagOpenRouter = "openrouter"
)

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Key       string   `yaml:"key"`
	Model     string   `yaml:"model"`
	BaseURL   string   `yaml:"base_url,omitempty"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

// ProvidersConfig holds per-provider settings, one block per known tag.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	Gemini     ProviderConfig `yaml:"gemini"`
	Groq       ProviderConfig `yaml:"groq"`
	NVIDIA     ProviderConfig `yaml:"nvidia"`
	DeepSeek   ProviderConfig `yaml:"deepseek"`
	Perplexity ProviderConfig `yaml:"perplexity"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
}

// ProviderTags lists every known provider tag in fan-out order. The order
// matters: synthesizer ties are broken by first occurrence in this list.
func ProviderTags() []string {
	return []string{
		TagOpenAI,
		TagGemini,
		TagGroq,
		TagNVIDIA,
		TagDeepSeek,
		TagPerplexity,
		TagOpenRouter,
	}
}

// ByTag returns a mutable pointer to the config block for a tag, or nil if
// the tag is unknown.
func (p *ProvidersConfig) ByTag(tag string) *ProviderConfig {
	switch strings.ToLower(tag) {
	case TagOpenAI:
		return &p.OpenAI
	case TagGemini:
		return &p.Gemini
	case TagGroq:
		return &p.Groq
	case TagNVIDIA:
		return &p.NVIDIA
	case TagDeepSeek:
		return &p.DeepSeek
	case TagPerplexity:
		return &p.Perplexity
	case TagOpenRouter:
		return &p.OpenRouter
	}
	return nil
}

// DefaultProviders returns the default provider configuration. All providers
// are enabled; a provider only becomes available once a key is present
// (config, environment, or per-request override).
func DefaultProviders() ProvidersConfig {
	chat := func(model string) ProviderConfig {
		return ProviderConfig{
			Enabled:   true,
			Model:     model,
			MaxTokens: 2048,
			Timeout:   Duration(30 * time.Second),
		}
	}
	p := ProvidersConfig{
		OpenAI:     chat("gpt-4o-mini"),
		Gemini:     chat("gemini-2.0-flash"),
		Groq:       chat("llama-3.3-70b-versatile"),
		NVIDIA:     chat("meta/llama-3.3-70b-instruct"),
		DeepSeek:   chat("deepseek-chat"),
		Perplexity: chat("sonar"),
		OpenRouter: chat("openrouter/auto"),
	}
	// The aggregator streams; it gets a longer leash.
	p.OpenRouter.Timeout = Duration(120 * time.Second)
	return p
}

func envKeyForTag(tag string) string {
	return strings.ToUpper(tag) + "_API_KEY"
}
