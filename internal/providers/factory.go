package providers

import "github.com/tinyclaw/tinyclaw/internal/schema"

// Params are the raw values needed to construct a provider.
// The caller extracts these from config.Config to avoid an import cycle.
type Params struct {
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	DefaultModel string
	ProviderName string // registry name, e.g. "openrouter", "anthropic"
}

// New creates the provider for the given params. Every configured backend
// speaks the OpenAI-compatible chat-completions wire; the base URL selects
// the vendor.
func New(p Params) schema.LLMProvider {
	return NewOpenAIProvider(p.APIKey, p.APIBase, p.DefaultModel, p.ProviderName, p.ExtraHeaders)
}
