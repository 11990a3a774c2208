package schema

import "context"

// ChatOptions configures a single LLM chat request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// UsageInfo reports token accounting for one provider call.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the normalised response from any LLM provider.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

// HasToolCalls reports whether the response contains at least one tool call.
func (r LLMResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// LLMProvider is the interface every LLM backend must satisfy.
// Providers adapt the canonical message form to their vendor wire format.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, opts ChatOptions) (LLMResponse, error)
	DefaultModel() string
}

// FailoverReason classifies why a provider candidate failed.
type FailoverReason string

const (
	ReasonAuth       FailoverReason = "auth"
	ReasonRateLimit  FailoverReason = "rate_limit"
	ReasonBilling    FailoverReason = "billing"
	ReasonTimeout    FailoverReason = "timeout"
	ReasonFormat     FailoverReason = "format"
	ReasonOverloaded FailoverReason = "overloaded"
	ReasonUnknown    FailoverReason = "unknown"
)

// FallbackCandidate is a (provider, model) pair eligible to serve a turn.
type FallbackCandidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// FallbackAttempt records the outcome of trying one candidate.
// Skipped attempts were never invoked (missing provider or cooldown).
type FallbackAttempt struct {
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Error      string         `json:"error,omitempty"`
	Reason     FailoverReason `json:"reason"`
	DurationMs float64        `json:"duration_ms"`
	Skipped    bool           `json:"skipped"`
}
