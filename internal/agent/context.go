// Package agent contains the agent identities, the context builder, and the
// loop that turns inbound messages into tool-augmented LLM conversations.
package agent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinyclaw/tinyclaw/internal/memory"
	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

// bootstrapFiles are loaded into the system prompt, in this order.
var bootstrapFiles = []string{"IDENTITY.md", "SOUL.md", "AGENT.md", "USER.md"}

// ContextBuilder assembles the system prompt and per-turn message list from
// workspace files, memory, and the tool registry. Deterministic for a given
// workspace and history.
type ContextBuilder struct {
	workspace string
	memory    *memory.Store
	tools     *tools.Registry
}

// NewContextBuilder creates a ContextBuilder for the given workspace.
func NewContextBuilder(workspace string, registry *tools.Registry) *ContextBuilder {
	mem, _ := memory.NewStore(workspace)
	return &ContextBuilder{workspace: workspace, memory: mem, tools: registry}
}

// BuildSystemPrompt concatenates, separated by blank lines: bootstrap files,
// skill definitions, available tool names, and memory context.
func (cb *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if skills := cb.loadSkills(); skills != "" {
		parts = append(parts, "# Active Skills\n"+skills)
	}
	if cb.tools != nil {
		if names := cb.tools.Names(); len(names) > 0 {
			parts = append(parts, "# Available Tools\n"+strings.Join(names, ", "))
		}
	}
	if cb.memory != nil {
		if mem := cb.memory.Context(); mem != "" {
			parts = append(parts, "# Memory\n"+mem)
		}
	}

	return strings.Join(parts, "\n\n")
}

// BuildMessages builds the full message list for an LLM call:
// [system, optional summary-as-system, history..., current user].
func (cb *ContextBuilder) BuildMessages(history []schema.Message, summary, currentMessage string) []schema.Message {
	var messages []schema.Message

	if prompt := cb.BuildSystemPrompt(); prompt != "" {
		messages = append(messages, schema.NewSystemMessage(prompt))
	}
	if summary != "" {
		messages = append(messages, schema.NewSystemMessage("Summary of earlier conversation:\n"+summary))
	}
	messages = append(messages, history...)
	if currentMessage != "" {
		messages = append(messages, schema.NewUserMessage(currentMessage))
	}
	return messages
}

func (cb *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(cb.workspace, name))
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// loadSkills reads skills/<name>/SKILL.md in sorted directory order.
func (cb *ContextBuilder) loadSkills() string {
	skillsDir := filepath.Join(cb.workspace, "skills")
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		return ""
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(skillsDir, name, "SKILL.md"))
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, "## "+name+"\n"+text)
		}
	}
	return strings.Join(parts, "\n\n")
}
