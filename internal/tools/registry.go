// Package tools implements the built-in tool set and the registry that
// dispatches tool calls on behalf of the agent loop.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Registry holds a set of named tools and executes them uniformly.
//
// Execute never returns a Go error to the caller: unknown tools, panics,
// and tool failures all become error ToolResults the LLM can recover from.
type Registry struct {
	tools map[string]schema.Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]schema.Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(tool schema.Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) schema.Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int { return len(r.tools) }

// Definitions returns all tool definitions in provider function-calling form.
func (r *Registry) Definitions() []schema.ToolDefinition {
	defs := make([]schema.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, schema.ToolDefinition{
			Type: "function",
			Function: schema.ToolFunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs a named tool. Before invocation it injects (channel, chatID)
// into contextual tools and attaches cb to async tools.
func (r *Registry) Execute(
	ctx context.Context,
	name string,
	args map[string]any,
	channel, chatID string,
	cb schema.AsyncCallback,
) (result schema.ToolResult) {
	tool, ok := r.tools[name]
	if !ok {
		return schema.ErrorResult(fmt.Sprintf("Unknown tool: %s", name))
	}

	if ct, ok := tool.(schema.ContextualTool); ok {
		ct.SetContext(channel, chatID)
	}
	if at, ok := tool.(schema.AsyncTool); ok && cb != nil {
		at.SetCallback(cb)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", name, "panic", rec)
			result = schema.ErrorResult(fmt.Sprintf("Tool execution error: %v", rec))
		}
	}()

	res, err := tool.Execute(ctx, args)
	if err != nil {
		slog.Warn("tool failed", "tool", name, "err", err)
		return schema.ErrorResult(fmt.Sprintf("Tool execution error: %v", err))
	}
	return res
}
