// Package dependency wires the core tinyclaw services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/tinyclaw/tinyclaw/internal/agent"
	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/cron"
	"github.com/tinyclaw/tinyclaw/internal/providers"
	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

// Container holds the resolved core service singletons. Callers use the
// typed getters; they never need to import dig directly.
type Container struct {
	msgBus  *bus.MessageBus
	chain   *providers.FallbackChain
	agents  *agent.Registry
	loop    *agent.Loop
	cronSvc *cron.Service
}

func (c *Container) MessageBus() *bus.MessageBus     { return c.msgBus }
func (c *Container) Chain() *providers.FallbackChain { return c.chain }
func (c *Container) AgentRegistry() *agent.Registry  { return c.agents }
func (c *Container) AgentLoop() *agent.Loop          { return c.loop }
func (c *Container) CronService() *cron.Service      { return c.cronSvc }

// ProviderMap is a named type so dig can inject the provider set distinctly
// from other maps.
type ProviderMap map[string]schema.LLMProvider

// SubagentRegistry wraps the restricted tool registry used by sub-agents.
// It must not contain the spawn or message tools, preventing recursion and
// unsolicited outbound messages.
type SubagentRegistry struct{ *tools.Registry }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	for _, provide := range []any{
		func() *config.Config { return cfg },
		newMessageBus,
		newProviderMap,
		newFallbackChain,
		newCronService,
		newSubagentRegistry,
		newSubagentManager,
		newAgentRegistry,
		newAgentLoop,
	} {
		if err := d.Provide(provide); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		msgBus *bus.MessageBus,
		chain *providers.FallbackChain,
		agents *agent.Registry,
		loop *agent.Loop,
		cronSvc *cron.Service,
		subMgr *agent.SubagentManager,
	) {
		subMgr.SetRegistry(agents)
		result = &Container{
			msgBus:  msgBus,
			chain:   chain,
			agents:  agents,
			loop:    loop,
			cronSvc: cronSvc,
		}
	})
	return result, err
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(bus.DefaultCapacity)
}

func newProviderMap(cfg *config.Config) (ProviderMap, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured — edit %s", config.ConfigPath())
	}
	pm := make(ProviderMap, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		pm[name] = providers.New(providers.Params{
			APIKey:       pc.APIKey,
			APIBase:      pc.APIBase,
			ExtraHeaders: pc.ExtraHeaders,
			DefaultModel: cfg.Agents.Defaults.Model,
			ProviderName: name,
		})
	}
	return pm, nil
}

func newFallbackChain(pm ProviderMap) *providers.FallbackChain {
	return providers.NewFallbackChain(pm, 0)
}

func newCronService() *cron.Service {
	return cron.NewService(filepath.Join(config.DataDir(), "cron"))
}

func newSubagentRegistry(cfg *config.Config) SubagentRegistry {
	workspace := cfg.WorkspacePath()
	allowedDir := ""
	if cfg.Tools.RestrictToWorkspace {
		allowedDir = workspace
	}

	r := tools.NewRegistry()
	r.Register(tools.NewReadFileTool(workspace, allowedDir))
	r.Register(tools.NewWriteFileTool(workspace, allowedDir))
	r.Register(tools.NewEditFileTool(workspace, allowedDir))
	r.Register(tools.NewListDirTool(workspace, allowedDir))
	r.Register(tools.NewExecTool(workspace, cfg.Tools.Exec.TimeoutSeconds, cfg.Tools.RestrictToWorkspace))
	r.Register(tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults))
	r.Register(tools.NewWebFetchTool(0))
	return SubagentRegistry{r}
}

func newSubagentManager(chain *providers.FallbackChain, b *bus.MessageBus, reg SubagentRegistry) *agent.SubagentManager {
	return agent.NewSubagentManager(chain, b, reg.Registry)
}

func newAgentRegistry(
	cfg *config.Config,
	b *bus.MessageBus,
	cronSvc *cron.Service,
	subMgr *agent.SubagentManager,
	pm ProviderMap,
) (*agent.Registry, error) {
	providerKeys := make(map[string]bool, len(pm))
	for k := range pm {
		providerKeys[k] = true
	}

	agentCfgs := cfg.Agents.Agents
	if len(agentCfgs) == 0 {
		agentCfgs = []config.AgentConfig{{ID: "default", Default: true}}
	}

	var instances []*agent.Instance
	defaultID := ""
	for _, ac := range agentCfgs {
		registry := newToolRegistry(cfg, ac, b, cronSvc)
		inst, err := agent.NewInstance(ac, cfg.Agents.Defaults, config.ExpandHome(cfg.Session.Dir), cfg.ModelList, providerKeys, registry)
		if err != nil {
			return nil, err
		}
		// The spawn tool needs the finished instance for its allowlist.
		registry.Register(tools.NewSpawnTool(subMgr, inst.CanSpawn))
		instances = append(instances, inst)
		if ac.Default {
			defaultID = inst.ID
		}
	}

	return agent.NewRegistry(instances, defaultID, cfg.Bindings), nil
}

// newToolRegistry builds one agent's tool set.
func newToolRegistry(cfg *config.Config, ac config.AgentConfig, b *bus.MessageBus, cronSvc *cron.Service) *tools.Registry {
	workspace := ac.Workspace
	if workspace == "" {
		workspace = cfg.Agents.Defaults.Workspace
	}
	workspace = config.ExpandHome(workspace)
	allowedDir := ""
	if cfg.Tools.RestrictToWorkspace {
		allowedDir = workspace
	}

	r := tools.NewRegistry()
	r.Register(tools.NewReadFileTool(workspace, allowedDir))
	r.Register(tools.NewWriteFileTool(workspace, allowedDir))
	r.Register(tools.NewEditFileTool(workspace, allowedDir))
	r.Register(tools.NewListDirTool(workspace, allowedDir))
	r.Register(tools.NewExecTool(workspace, cfg.Tools.Exec.TimeoutSeconds, cfg.Tools.RestrictToWorkspace))
	r.Register(tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults))
	r.Register(tools.NewWebFetchTool(0))
	r.Register(tools.NewMessageTool(b))
	r.Register(tools.NewCronTool(cronSvc))
	r.Register(tools.EchoTool{})
	return r
}

func newAgentLoop(b *bus.MessageBus, agents *agent.Registry, chain *providers.FallbackChain) *agent.Loop {
	return agent.NewLoop(b, agents, chain)
}
