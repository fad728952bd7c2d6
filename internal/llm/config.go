// Package llm talks to the language model that classifies articles.
// Two providers are supported: Google Gemini and a local Ollama server.
package llm

import "fmt"

// ModelTier selects a model by capability rather than by name.
type ModelTier string

const (
	// TierLite is a small fast model; suitability checks run here.
	TierLite ModelTier = "lite"
	// TierStandard is a larger model for prompts the lite model answers poorly.
	TierStandard ModelTier = "standard"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// ParseProvider maps a configuration string to a Provider. Empty means Gemini.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case "", ProviderGemini:
		return ProviderGemini, nil
	case ProviderOllama:
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown LLM provider %q", s)
	}
}

// Config selects models and sampling for one provider.
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
	// MaxOutputTokens caps a single answer. Zero leaves the provider default.
	MaxOutputTokens int32
}

// A verdict is one short JSON object; this leaves room for a reason sentence.
const verdictTokenBudget = 256

// DefaultGeminiConfig is the hosted setup.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		MaxOutputTokens: verdictTokenBudget,
	}
}

// DefaultOllamaConfig is the local setup. Small local models need a little
// temperature to avoid repeating the prompt back.
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider: ProviderOllama,
		Models: map[ModelTier]string{
			TierLite:     "llama3.2",
			TierStandard: "llama3.1",
		},
		Temperature:     0.2,
		MaxOutputTokens: verdictTokenBudget,
	}
}

// ConfigFor returns the defaults of provider. A non-empty model replaces the
// lite tier, which is the one the classifier uses.
func ConfigFor(provider Provider, model string) *Config {
	base := DefaultGeminiConfig()
	if provider == ProviderOllama {
		base = DefaultOllamaConfig()
	}
	if model == "" {
		return base
	}

	models := make(map[ModelTier]string, len(base.Models))
	for tier, name := range base.Models {
		models[tier] = name
	}
	models[TierLite] = model
	base.Models = models
	return base
}

// GetModel returns the model for tier, falling back to the lite model.
// It is empty when neither is configured.
func (c *Config) GetModel(tier ModelTier) string {
	if name := c.Models[tier]; name != "" {
		return name
	}
	return c.Models[TierLite]
}
