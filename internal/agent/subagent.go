package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/providers"
	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

// subagentMaxIterations bounds a sub-agent's own tool loop.
const subagentMaxIterations = 10

// SubagentManager runs background sub-agent tasks. Each task gets the
// target agent's model candidates and context, but a restricted tool
// registry (no message or spawn tools) so sub-agents cannot recurse or
// send unsolicited messages.
type SubagentManager struct {
	chain      *providers.FallbackChain
	bus        *bus.MessageBus
	restricted *tools.Registry

	mu       sync.Mutex
	registry *Registry
	running  map[string]context.CancelFunc
}

// NewSubagentManager creates a SubagentManager. The agent registry is
// attached later via SetRegistry to break the construction cycle.
func NewSubagentManager(chain *providers.FallbackChain, b *bus.MessageBus, restricted *tools.Registry) *SubagentManager {
	return &SubagentManager{
		chain:      chain,
		bus:        b,
		restricted: restricted,
		running:    make(map[string]context.CancelFunc),
	}
}

// SetRegistry attaches the agent registry used to resolve target agents.
func (sm *SubagentManager) SetRegistry(r *Registry) {
	sm.mu.Lock()
	sm.registry = r
	sm.mu.Unlock()
}

// RunningCount returns the number of active sub-agents.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}

// Spawn implements tools.Spawner: it starts a detached goroutine for the
// task and returns an acknowledgement immediately. The final answer is
// delivered through cb into the originating session.
func (sm *SubagentManager) Spawn(
	_ context.Context,
	task, label, agentID, channel, chatID string,
	cb schema.AsyncCallback,
) (string, error) {
	sm.mu.Lock()
	registry := sm.registry
	sm.mu.Unlock()
	if registry == nil {
		return "", fmt.Errorf("subagent manager not wired to an agent registry")
	}

	target := registry.Get(agentID)
	if target == nil {
		target = registry.Default()
	}

	taskID := uuid.NewString()[:8]
	subCtx, cancel := context.WithCancel(context.Background()) // detached from the turn
	sm.mu.Lock()
	sm.running[taskID] = cancel
	sm.mu.Unlock()

	go func() {
		defer func() {
			sm.mu.Lock()
			delete(sm.running, taskID)
			sm.mu.Unlock()
			cancel()
		}()
		sm.runTask(subCtx, taskID, task, label, target, channel, chatID, cb)
	}()

	slog.Info("subagent spawned", "id", taskID, "label", label, "agent", target.ID)
	return fmt.Sprintf("Subagent [%s] started (id: %s). It will report when complete.", label, taskID), nil
}

func (sm *SubagentManager) runTask(
	ctx context.Context,
	taskID, task, label string,
	target *Instance,
	channel, chatID string,
	cb schema.AsyncCallback,
) {
	messages := target.Context.BuildMessages(nil, "", task)
	defs := sm.restricted.Definitions()
	opts := schema.ChatOptions{
		Model:       target.Model,
		MaxTokens:   target.MaxTokens,
		Temperature: target.Temperature,
	}

	var final string
	for i := 0; i < subagentMaxIterations; i++ {
		resp, _, err := sm.chain.Execute(ctx, target.Candidates, messages, defs, opts)
		if err != nil {
			final = "Error: " + err.Error()
			break
		}
		if !resp.HasToolCalls() {
			final = resp.Content
			break
		}
		messages = append(messages, schema.NewAssistantMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result := sm.restricted.Execute(ctx, call.Name, call.Arguments, channel, chatID, nil)
			messages = append(messages, schema.NewToolResultMessage(call.ID, result.ForLLM))
		}
	}
	if final == "" {
		final = "Subagent stopped after reaching its iteration limit."
	}

	slog.Info("subagent finished", "id", taskID, "label", label)
	report := fmt.Sprintf("Subagent [%s] finished:\n%s", label, final)

	if cb != nil {
		cb(schema.ToolResult{ForLLM: report, ForUser: report})
		return
	}
	if channel != "" && chatID != "" {
		sm.bus.PublishOutbound(schema.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: report,
		})
	}
}
