package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// DefaultCooldown is how long a failed candidate stays ineligible.
const DefaultCooldown = 60 * time.Second

// ErrProvidersExhausted is returned when every candidate failed or was
// skipped. It carries the full attempt list for diagnostics.
type ErrProvidersExhausted struct {
	Attempts []schema.FallbackAttempt
}

func (e *ErrProvidersExhausted) Error() string {
	return fmt.Sprintf("all %d provider candidates failed", len(e.Attempts))
}

// FallbackChain tries provider/model candidates in sequence with
// per-candidate cooldowns.
type FallbackChain struct {
	providers map[string]schema.LLMProvider
	cooldown  time.Duration

	mu        sync.Mutex
	cooldowns map[string]time.Time // "provider:model" → last failure

	now func() time.Time // injectable for tests
}

// NewFallbackChain creates a chain over the given provider map.
// cooldown <= 0 selects DefaultCooldown.
func NewFallbackChain(providers map[string]schema.LLMProvider, cooldown time.Duration) *FallbackChain {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &FallbackChain{
		providers: providers,
		cooldown:  cooldown,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Provider returns the provider registered under key, or nil.
func (fc *FallbackChain) Provider(key string) schema.LLMProvider {
	return fc.providers[key]
}

// Execute tries candidates in order and returns the first successful
// response along with the attempt log. Missing providers and candidates in
// cooldown are recorded as skipped attempts. A failed call sets the
// candidate's cooldown and the chain moves on; when nothing succeeds the
// error is *ErrProvidersExhausted.
func (fc *FallbackChain) Execute(
	ctx context.Context,
	candidates []schema.FallbackCandidate,
	messages []schema.Message,
	tools []schema.ToolDefinition,
	opts schema.ChatOptions,
) (schema.LLMResponse, []schema.FallbackAttempt, error) {
	var attempts []schema.FallbackAttempt

	for _, c := range candidates {
		provider, ok := fc.providers[c.Provider]
		if !ok {
			attempts = append(attempts, schema.FallbackAttempt{
				Provider: c.Provider,
				Model:    c.Model,
				Error:    fmt.Sprintf("provider %q not found", c.Provider),
				Reason:   schema.ReasonUnknown,
				Skipped:  true,
			})
			continue
		}

		key := c.Provider + ":" + c.Model
		if fc.inCooldown(key) {
			attempts = append(attempts, schema.FallbackAttempt{
				Provider: c.Provider,
				Model:    c.Model,
				Error:    "in cooldown",
				Reason:   schema.ReasonRateLimit,
				Skipped:  true,
			})
			continue
		}

		callOpts := opts
		callOpts.Model = c.Model

		start := fc.now()
		resp, err := provider.Chat(ctx, messages, tools, callOpts)
		durationMs := float64(fc.now().Sub(start)) / float64(time.Millisecond)

		if err == nil {
			attempts = append(attempts, schema.FallbackAttempt{
				Provider:   c.Provider,
				Model:      c.Model,
				DurationMs: durationMs,
			})
			return resp, attempts, nil
		}

		reason := ClassifyError(err)
		fc.setCooldown(key)
		attempts = append(attempts, schema.FallbackAttempt{
			Provider:   c.Provider,
			Model:      c.Model,
			Error:      err.Error(),
			Reason:     reason,
			DurationMs: durationMs,
		})
		slog.Warn("provider candidate failed",
			"provider", c.Provider, "model", c.Model, "reason", reason, "err", err)
	}

	return schema.LLMResponse{}, attempts, &ErrProvidersExhausted{Attempts: attempts}
}

func (fc *FallbackChain) inCooldown(key string) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	last, ok := fc.cooldowns[key]
	return ok && fc.now().Sub(last) < fc.cooldown
}

func (fc *FallbackChain) setCooldown(key string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.cooldowns[key] = fc.now()
}

// ClassifyError maps a provider error onto a failover reason by substring
// inspection of the message.
func ClassifyError(err error) schema.FailoverReason {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "auth"):
		return schema.ReasonAuth
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate"):
		return schema.ReasonRateLimit
	case strings.Contains(msg, "402"), strings.Contains(msg, "billing"), strings.Contains(msg, "quota"):
		return schema.ReasonBilling
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return schema.ReasonTimeout
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "529"), strings.Contains(msg, "503"):
		return schema.ReasonOverloaded
	default:
		return schema.ReasonUnknown
	}
}
