package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// fakeProvider fails with err until it runs out of failures, then answers.
type fakeProvider struct {
	err     error
	content string
	calls   int
}

func (f *fakeProvider) Chat(context.Context, []schema.Message, []schema.ToolDefinition, schema.ChatOptions) (schema.LLMResponse, error) {
	f.calls++
	if f.err != nil {
		return schema.LLMResponse{}, f.err
	}
	return schema.LLMResponse{Content: f.content}, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func candidates(pairs ...string) []schema.FallbackCandidate {
	out := make([]schema.FallbackCandidate, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schema.FallbackCandidate{Provider: pairs[i], Model: pairs[i+1]})
	}
	return out
}

func TestExecuteFirstCandidateWins(t *testing.T) {
	chain := NewFallbackChain(map[string]schema.LLMProvider{
		"a": &fakeProvider{content: "hello"},
	}, 0)

	resp, attempts, err := chain.Execute(context.Background(),
		candidates("a", "m1"), nil, nil, schema.ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if len(attempts) != 1 || attempts[0].Skipped || attempts[0].Error != "" {
		t.Errorf("unexpected attempts: %+v", attempts)
	}
}

func TestExecuteCascade(t *testing.T) {
	a := &fakeProvider{err: fmt.Errorf("429 rate limit exceeded")}
	b := &fakeProvider{content: "never called"}
	c := &fakeProvider{content: "ok"}
	chain := NewFallbackChain(map[string]schema.LLMProvider{"a": a, "b": b, "c": c}, 0)

	// Put B into cooldown as if it had failed moments ago.
	chain.setCooldown("b:mb")

	resp, attempts, err := chain.Execute(context.Background(),
		candidates("a", "ma", "b", "mb", "c", "mc"), nil, nil, schema.ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].Skipped || attempts[0].Reason != schema.ReasonRateLimit {
		t.Errorf("attempt A should be a non-skipped rate_limit failure: %+v", attempts[0])
	}
	if !attempts[1].Skipped || attempts[1].Reason != schema.ReasonRateLimit {
		t.Errorf("attempt B should be skipped for cooldown: %+v", attempts[1])
	}
	if attempts[2].Skipped || attempts[2].Error != "" {
		t.Errorf("attempt C should be the success: %+v", attempts[2])
	}
	if b.calls != 0 {
		t.Errorf("cooled-down candidate must not be invoked, got %d calls", b.calls)
	}
}

func TestExecuteMissingProviderSkipped(t *testing.T) {
	chain := NewFallbackChain(map[string]schema.LLMProvider{
		"real": &fakeProvider{content: "ok"},
	}, 0)

	_, attempts, err := chain.Execute(context.Background(),
		candidates("ghost", "m", "real", "m"), nil, nil, schema.ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !attempts[0].Skipped || attempts[0].Reason != schema.ReasonUnknown {
		t.Errorf("missing provider should be skipped unknown: %+v", attempts[0])
	}
}

func TestExecuteExhausted(t *testing.T) {
	chain := NewFallbackChain(map[string]schema.LLMProvider{
		"a": &fakeProvider{err: fmt.Errorf("503 overloaded")},
	}, 0)

	_, attempts, err := chain.Execute(context.Background(),
		candidates("a", "m", "missing", "m"), nil, nil, schema.ChatOptions{})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	var exhausted *ErrProvidersExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrProvidersExhausted, got %T", err)
	}
	if len(exhausted.Attempts) != 2 || len(attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(exhausted.Attempts))
	}
}

func TestFailureSetsCooldown(t *testing.T) {
	failing := &fakeProvider{err: fmt.Errorf("boom")}
	chain := NewFallbackChain(map[string]schema.LLMProvider{"a": failing}, time.Minute)

	_, _, _ = chain.Execute(context.Background(), candidates("a", "m"), nil, nil, schema.ChatOptions{})
	_, attempts, _ := chain.Execute(context.Background(), candidates("a", "m"), nil, nil, schema.ChatOptions{})

	if !attempts[0].Skipped {
		t.Errorf("second attempt should be skipped by cooldown: %+v", attempts[0])
	}
	if failing.calls != 1 {
		t.Errorf("provider should only have been called once, got %d", failing.calls)
	}
}

func TestCooldownExpires(t *testing.T) {
	failing := &fakeProvider{err: fmt.Errorf("boom")}
	chain := NewFallbackChain(map[string]schema.LLMProvider{"a": failing}, time.Minute)

	now := time.Now()
	chain.now = func() time.Time { return now }
	_, _, _ = chain.Execute(context.Background(), candidates("a", "m"), nil, nil, schema.ChatOptions{})

	chain.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, attempts, _ := chain.Execute(context.Background(), candidates("a", "m"), nil, nil, schema.ChatOptions{})
	if attempts[0].Skipped {
		t.Errorf("cooldown should have expired: %+v", attempts[0])
	}
	if failing.calls != 2 {
		t.Errorf("expected 2 calls, got %d", failing.calls)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		want schema.FailoverReason
	}{
		{"401 unauthorized", schema.ReasonAuth},
		{"403 forbidden", schema.ReasonAuth},
		{"authentication failed", schema.ReasonAuth},
		{"429 too many requests", schema.ReasonRateLimit},
		{"rate limit exceeded", schema.ReasonRateLimit},
		{"402 payment required", schema.ReasonBilling},
		{"billing issue", schema.ReasonBilling},
		{"quota exhausted", schema.ReasonBilling},
		{"request timeout", schema.ReasonTimeout},
		{"context timed out", schema.ReasonTimeout},
		{"529 overloaded", schema.ReasonOverloaded},
		{"503 service unavailable", schema.ReasonOverloaded},
		{"something else entirely", schema.ReasonUnknown},
	}
	for _, c := range cases {
		if got := ClassifyError(errors.New(c.msg)); got != c.want {
			t.Errorf("ClassifyError(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}
