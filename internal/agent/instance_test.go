package agent

import (
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

func testDefaults(t *testing.T) config.AgentDefaults {
	t.Helper()
	return config.AgentDefaults{
		Workspace:         t.TempDir(),
		Model:             "anthropic/claude-x",
		MaxToolIterations: 7,
		MaxTokens:         2048,
		Temperature:       0.5,
	}
}

func TestNewInstanceDefaults(t *testing.T) {
	inst, err := NewInstance(config.AgentConfig{}, testDefaults(t), "", nil,
		map[string]bool{"anthropic": true}, tools.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.ID != "default" || inst.Name != "default" {
		t.Errorf("unexpected identity %q/%q", inst.ID, inst.Name)
	}
	if inst.MaxIterations != 7 || inst.MaxTokens != 2048 {
		t.Errorf("defaults not applied: %+v", inst)
	}
	if len(inst.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %+v", inst.Candidates)
	}
	if inst.Candidates[0].Provider != "anthropic" || inst.Candidates[0].Model != "anthropic/claude-x" {
		t.Errorf("unexpected primary candidate %+v", inst.Candidates[0])
	}
}

func TestCandidateOrderWithFallbacks(t *testing.T) {
	defaults := testDefaults(t)
	defaults.ModelFallbacks = []string{"openrouter/big-model", "small-model"}

	inst, err := NewInstance(config.AgentConfig{ID: "a1"}, defaults, "",
		[]string{"groq/fast-model"},
		map[string]bool{"anthropic": true, "openrouter": true, "groq": true},
		tools.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []schema.FallbackCandidate{
		{Provider: "anthropic", Model: "anthropic/claude-x"},
		{Provider: "openrouter", Model: "big-model"},
		{Provider: "anthropic", Model: "small-model"},
		{Provider: "groq", Model: "fast-model"},
	}
	if len(inst.Candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %+v", len(want), inst.Candidates)
	}
	for i, w := range want {
		if inst.Candidates[i] != w {
			t.Errorf("candidate %d = %+v, want %+v", i, inst.Candidates[i], w)
		}
	}
}

func TestCanSpawnUnrestricted(t *testing.T) {
	inst, _ := NewInstance(config.AgentConfig{ID: "a"}, testDefaults(t), "", nil,
		map[string]bool{"anthropic": true}, tools.NewRegistry())
	if !inst.CanSpawn("anything") {
		t.Error("empty allowlist means unrestricted")
	}
}

func TestCanSpawnAllowlist(t *testing.T) {
	cfg := config.AgentConfig{
		ID:        "a",
		Subagents: &config.SubagentsConfig{AllowAgents: []string{"helper"}},
	}
	inst, _ := NewInstance(cfg, testDefaults(t), "", nil,
		map[string]bool{"anthropic": true}, tools.NewRegistry())
	if !inst.CanSpawn("helper") {
		t.Error("listed agent must be allowed")
	}
	if inst.CanSpawn("other") {
		t.Error("unlisted agent must be rejected")
	}
}

func TestRegistryDefaultSelection(t *testing.T) {
	defaults := testDefaults(t)
	a, _ := NewInstance(config.AgentConfig{ID: "a"}, defaults, "", nil, map[string]bool{"anthropic": true}, tools.NewRegistry())
	b, _ := NewInstance(config.AgentConfig{ID: "b"}, defaults, "", nil, map[string]bool{"anthropic": true}, tools.NewRegistry())

	reg := NewRegistry([]*Instance{a, b}, "b", nil)
	if reg.Default().ID != "b" {
		t.Errorf("expected default b, got %q", reg.Default().ID)
	}
	if reg.Get("a") != a || reg.Get("missing") != nil {
		t.Error("Get misbehaves")
	}
}

func TestRegistryResolveUnknownAgentFallsBack(t *testing.T) {
	defaults := testDefaults(t)
	a, _ := NewInstance(config.AgentConfig{ID: "a"}, defaults, "", nil, map[string]bool{"anthropic": true}, tools.NewRegistry())

	bindings := []schema.RouteBinding{
		{AgentID: "ghost", Match: schema.BindingMatch{Channel: "tg"}},
	}
	reg := NewRegistry([]*Instance{a}, "a", bindings)
	route, inst := reg.Resolve(schema.RouteInput{Channel: "tg"})
	if route.AgentID != "ghost" {
		t.Errorf("route should carry the bound id, got %q", route.AgentID)
	}
	if inst != a {
		t.Error("unknown agent id must fall back to the default instance")
	}
}

func TestRegistryCanSpawn(t *testing.T) {
	defaults := testDefaults(t)
	parent, _ := NewInstance(config.AgentConfig{
		ID:        "parent",
		Subagents: &config.SubagentsConfig{AllowAgents: []string{"child"}},
	}, defaults, "", nil, map[string]bool{"anthropic": true}, tools.NewRegistry())
	child, _ := NewInstance(config.AgentConfig{ID: "child"}, defaults, "", nil, map[string]bool{"anthropic": true}, tools.NewRegistry())

	reg := NewRegistry([]*Instance{parent, child}, "parent", nil)
	if !reg.CanSpawn("parent", "child") {
		t.Error("allowlisted spawn must pass")
	}
	if reg.CanSpawn("parent", "parent") {
		t.Error("non-listed target must fail")
	}
	if reg.CanSpawn("child", "ghost") {
		t.Error("unknown target must fail")
	}
}
