// Package providers implements LLM backends and the failover chain that
// sequences them.
package providers

import "strings"

// ProviderSpec is the metadata record for one known provider family.
type ProviderSpec struct {
	Name           string   // config key, e.g. "openrouter"
	Keywords       []string // model-name keywords for matching (lowercase)
	DisplayName    string
	IsGateway      bool   // routes any model (OpenRouter and friends)
	DefaultAPIBase string // fallback base URL when none is configured
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

// Specs is the provider registry. Order = match priority.
var Specs = []ProviderSpec{
	{
		Name:           "openrouter",
		Keywords:       []string{"openrouter"},
		DisplayName:    "OpenRouter",
		IsGateway:      true,
		DefaultAPIBase: "https://openrouter.ai/api/v1",
	},
	{
		Name:           "anthropic",
		Keywords:       []string{"anthropic", "claude"},
		DisplayName:    "Anthropic",
		DefaultAPIBase: "https://api.anthropic.com/v1",
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		DisplayName:    "DeepSeek",
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name:           "gemini",
		Keywords:       []string{"gemini"},
		DisplayName:    "Gemini",
		DefaultAPIBase: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	{
		Name:           "groq",
		Keywords:       []string{"groq"},
		DisplayName:    "Groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
	},
	{
		Name:        "vllm",
		Keywords:    []string{"vllm"},
		DisplayName: "vLLM/Local",
	},
}

// FindByName returns the spec whose Name equals name, or nil.
func FindByName(name string) *ProviderSpec {
	for i := range Specs {
		if Specs[i].Name == name {
			return &Specs[i]
		}
	}
	return nil
}

// FindByModel matches a provider spec by model-name keyword, preferring an
// explicit "provider/" prefix. Gateways are skipped; they are selected by
// config key, not model name.
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	prefix, _, _ := strings.Cut(modelLower, "/")

	for i := range Specs {
		if !Specs[i].IsGateway && Specs[i].Name == prefix {
			return &Specs[i]
		}
	}
	for i := range Specs {
		if Specs[i].IsGateway {
			continue
		}
		for _, kw := range Specs[i].Keywords {
			if strings.Contains(modelLower, kw) {
				return &Specs[i]
			}
		}
	}
	return nil
}
