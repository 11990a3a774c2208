package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/providers"
	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/session"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

// Instance is one agent's configured identity: workspace, model candidates,
// tool set, session store, and sub-agent policy. Constructed once at startup
// and immutable thereafter except for its sessions.
type Instance struct {
	ID        string
	Name      string
	Workspace string

	Model         string
	Fallbacks     []string
	MaxIterations int
	MaxTokens     int
	Temperature   float64

	Candidates []schema.FallbackCandidate

	Tools    *tools.Registry
	Sessions *session.Manager
	Context  *ContextBuilder

	// SubagentAllow lists spawnable agent ids; empty means unrestricted.
	SubagentAllow []string
}

// NewInstance builds an Instance from its config entry and the defaults.
// providerKeys is the set of configured provider names, used to resolve
// fallback entries of the form "provider/model". sessionDir overrides the
// session storage root; empty selects <workspace>/sessions, a non-empty
// value stores each agent under <sessionDir>/<id>.
func NewInstance(
	agentCfg config.AgentConfig,
	defaults config.AgentDefaults,
	sessionDir string,
	modelList []string,
	providerKeys map[string]bool,
	registry *tools.Registry,
) (*Instance, error) {
	id := agentCfg.ID
	if id == "" {
		id = "default"
	}
	name := agentCfg.Name
	if name == "" {
		name = id
	}

	workspace := agentCfg.Workspace
	if workspace == "" {
		workspace = defaults.Workspace
	}
	workspace = config.ExpandHome(workspace)

	model := defaults.Model
	fallbacks := defaults.ModelFallbacks
	if agentCfg.Model != nil {
		if agentCfg.Model.Primary != "" {
			model = agentCfg.Model.Primary
		}
		if len(agentCfg.Model.Fallbacks) > 0 {
			fallbacks = agentCfg.Model.Fallbacks
		}
	}

	sessionsRoot := filepath.Join(workspace, "sessions")
	if sessionDir != "" {
		sessionsRoot = filepath.Join(sessionDir, id)
	}
	sessions, err := session.NewManager(sessionsRoot)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}

	inst := &Instance{
		ID:            id,
		Name:          name,
		Workspace:     workspace,
		Model:         model,
		Fallbacks:     fallbacks,
		MaxIterations: defaults.MaxToolIterations,
		MaxTokens:     defaults.MaxTokens,
		Temperature:   defaults.Temperature,
		Tools:         registry,
		Sessions:      sessions,
		Context:       NewContextBuilder(workspace, registry),
	}
	if agentCfg.Subagents != nil {
		inst.SubagentAllow = agentCfg.Subagents.AllowAgents
	}

	inst.Candidates = buildCandidates(model, fallbacks, modelList, providerKeys)
	return inst, nil
}

// CanSpawn reports whether this agent may spawn target as a sub-agent.
// An empty allowlist means unrestricted.
func (a *Instance) CanSpawn(target string) bool {
	if len(a.SubagentAllow) == 0 {
		return true
	}
	for _, id := range a.SubagentAllow {
		if id == target {
			return true
		}
	}
	return false
}

// buildCandidates orders the provider/model pairs tried by the fallback
// chain: the primary model first, then the agent's fallbacks, then the
// global model list. Entries may name their provider as "provider/model";
// a bare model takes the configured provider whose registry keywords match
// it, else the primary's provider.
func buildCandidates(model string, fallbacks, modelList []string, providerKeys map[string]bool) []schema.FallbackCandidate {
	primary := providerForModel(model, providerKeys)
	candidates := []schema.FallbackCandidate{{Provider: primary, Model: model}}

	seen := map[string]bool{primary + ":" + model: true}
	for _, entry := range append(append([]string{}, fallbacks...), modelList...) {
		provider, m := splitCandidate(entry, primary, providerKeys)
		key := provider + ":" + m
		if m == "" || seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, schema.FallbackCandidate{Provider: provider, Model: m})
	}
	return candidates
}

// providerForModel picks the provider key serving a model: the registry
// match when that key is configured, else the model's own "provider/" prefix,
// else the sole configured key.
func providerForModel(model string, providerKeys map[string]bool) string {
	if spec := providers.FindByModel(model); spec != nil && providerKeys[spec.Name] {
		return spec.Name
	}
	if prefix, _, ok := strings.Cut(model, "/"); ok && providerKeys[prefix] {
		return prefix
	}
	if len(providerKeys) == 1 {
		for k := range providerKeys {
			return k
		}
	}
	return "primary"
}

// splitCandidate parses a "provider/model" entry; a bare model takes the
// configured provider matched by the registry, else the default provider.
func splitCandidate(entry, defaultProvider string, providerKeys map[string]bool) (string, string) {
	if prefix, rest, ok := strings.Cut(entry, "/"); ok && providerKeys[prefix] {
		return prefix, rest
	}
	if spec := providers.FindByModel(entry); spec != nil && providerKeys[spec.Name] {
		return spec.Name, entry
	}
	return defaultProvider, entry
}
