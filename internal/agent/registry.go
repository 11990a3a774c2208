package agent

import (
	"log/slog"

	"github.com/tinyclaw/tinyclaw/internal/routing"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Registry is the collection of agent instances plus the binding table that
// routes inbound messages onto them.
type Registry struct {
	agents    map[string]*Instance
	defaultID string
	bindings  []schema.RouteBinding
}

// NewRegistry creates a Registry over the given instances. The instance
// flagged as default (or the first one) becomes the fallback for unknown
// agent ids.
func NewRegistry(instances []*Instance, defaultID string, bindings []schema.RouteBinding) *Registry {
	r := &Registry{
		agents:   make(map[string]*Instance, len(instances)),
		bindings: bindings,
	}
	for _, inst := range instances {
		r.agents[inst.ID] = inst
	}
	if _, ok := r.agents[defaultID]; !ok {
		defaultID = ""
	}
	if defaultID == "" {
		for _, inst := range instances {
			defaultID = inst.ID
			break
		}
	}
	r.defaultID = defaultID
	return r
}

// Get returns the agent with the given id, or nil.
func (r *Registry) Get(id string) *Instance { return r.agents[id] }

// Default returns the default agent.
func (r *Registry) Default() *Instance { return r.agents[r.defaultID] }

// IDs returns all agent ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Resolve routes an input through the binding table. A routing miss falls
// back to the default agent.
func (r *Registry) Resolve(input schema.RouteInput) (schema.ResolvedRoute, *Instance) {
	route := routing.Resolve(input, r.bindings)
	inst := r.agents[route.AgentID]
	if inst == nil {
		slog.Debug("route resolved to unknown agent, using default",
			"agent", route.AgentID, "matched_by", route.MatchedBy)
		inst = r.Default()
	}
	return route, inst
}

// CanSpawn reports whether parent may spawn target as a sub-agent.
// Unknown parents cannot spawn; unknown targets cannot be spawned.
func (r *Registry) CanSpawn(parentID, targetID string) bool {
	parent := r.agents[parentID]
	if parent == nil {
		return false
	}
	if _, ok := r.agents[targetID]; !ok {
		return false
	}
	return parent.CanSpawn(targetID)
}
