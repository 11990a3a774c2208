// Package config defines the tinyclaw configuration schema.
//
// Recognized top-level keys: agents, bindings, session, channels, providers,
// model_list, gateway, tools, heartbeat, devices. Unspecified values take
// the defaults from DefaultConfig.
package config

import (
	"os"
	"path/filepath"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Config is the root configuration object.
type Config struct {
	Agents    AgentsConfig              `json:"agents" yaml:"agents"`
	Bindings  []schema.RouteBinding     `json:"bindings" yaml:"bindings"`
	Session   SessionConfig             `json:"session" yaml:"session"`
	Channels  ChannelsConfig            `json:"channels" yaml:"channels"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	ModelList []string                  `json:"model_list" yaml:"model_list"`
	Gateway   GatewayConfig             `json:"gateway" yaml:"gateway"`
	Tools     ToolsConfig               `json:"tools" yaml:"tools"`
	Heartbeat HeartbeatConfig           `json:"heartbeat" yaml:"heartbeat"`
	Devices   DevicesConfig             `json:"devices" yaml:"devices"`
}

// AgentDefaults applies to every agent unless overridden per agent.
type AgentDefaults struct {
	Workspace           string   `json:"workspace" yaml:"workspace"`
	Model               string   `json:"model" yaml:"model"`
	ModelFallbacks      []string `json:"model_fallbacks" yaml:"model_fallbacks"`
	MaxToolIterations   int      `json:"max_tool_iterations" yaml:"max_tool_iterations"`
	MaxTokens           int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature         float64  `json:"temperature" yaml:"temperature"`
	RestrictToWorkspace bool     `json:"restrict_to_workspace" yaml:"restrict_to_workspace"`
}

// ModelConfig is a per-agent model override.
type ModelConfig struct {
	Primary   string   `json:"primary" yaml:"primary"`
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks"`
}

// SubagentsConfig restricts which agents may be spawned as sub-agents.
// An empty AllowAgents list means unrestricted.
type SubagentsConfig struct {
	AllowAgents []string `json:"allow_agents" yaml:"allow_agents"`
}

// AgentConfig describes one configured agent identity.
type AgentConfig struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Default   bool             `json:"default" yaml:"default"`
	Workspace string           `json:"workspace" yaml:"workspace"`
	Model     *ModelConfig     `json:"model" yaml:"model"`
	Subagents *SubagentsConfig `json:"subagents" yaml:"subagents"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults" yaml:"defaults"`
	Agents   []AgentConfig `json:"agents" yaml:"agents"`
}

// SessionConfig overrides where sessions are stored; empty = per-agent
// <workspace>/sessions.
type SessionConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// ProviderConfig carries the credentials for one provider key.
type ProviderConfig struct {
	APIKey       string            `json:"api_key" yaml:"api_key"`
	APIBase      string            `json:"api_base" yaml:"api_base"`
	ExtraHeaders map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type ExecConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type WebSearchConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	MaxResults int    `json:"max_results" yaml:"max_results"`
}

type WebConfig struct {
	Search WebSearchConfig `json:"search" yaml:"search"`
}

type ToolsConfig struct {
	Exec                ExecConfig `json:"exec" yaml:"exec"`
	Web                 WebConfig  `json:"web" yaml:"web"`
	RestrictToWorkspace bool       `json:"restrict_to_workspace" yaml:"restrict_to_workspace"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalMinutes int  `json:"interval_minutes" yaml:"interval_minutes"`
}

type DevicesConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	MonitorUSB bool `json:"monitor_usb" yaml:"monitor_usb"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:         "~/.tinyclaw/workspace",
				MaxToolIterations: 10,
				MaxTokens:         4096,
				Temperature:       0.7,
			},
		},
		Providers: map[string]ProviderConfig{},
		Gateway:   GatewayConfig{Host: "127.0.0.1", Port: 18890},
		Tools: ToolsConfig{
			Exec: ExecConfig{TimeoutSeconds: 120},
			Web:  WebConfig{Search: WebSearchConfig{MaxResults: 5}},
		},
		Heartbeat: HeartbeatConfig{IntervalMinutes: 30},
	}
}

// WorkspacePath returns the expanded absolute default workspace path.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
