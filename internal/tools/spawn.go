package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Spawner launches a background sub-agent task. The final answer is
// delivered through the async callback into the originating session.
type Spawner interface {
	Spawn(ctx context.Context, task, label, agentID, channel, chatID string, cb schema.AsyncCallback) (string, error)
}

// SpawnTool creates a sub-agent for background work. The target agent is
// checked against the parent agent's allowlist before spawning.
type SpawnTool struct {
	spawner  Spawner
	canSpawn func(agentID string) bool

	channel string
	chatID  string
	cb      schema.AsyncCallback
}

// NewSpawnTool creates a SpawnTool. canSpawn may be nil (unrestricted).
func NewSpawnTool(spawner Spawner, canSpawn func(agentID string) bool) *SpawnTool {
	return &SpawnTool{spawner: spawner, canSpawn: canSpawn}
}

// SetContext implements schema.ContextualTool.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.channel = channel
	t.chatID = chatID
}

// SetCallback implements schema.AsyncTool.
func (t *SpawnTool) SetCallback(cb schema.AsyncCallback) { t.cb = cb }

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Spawn a background subagent to handle a complex or long-running task. " +
		"The subagent runs independently and reports results when done."
}
func (t *SpawnTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {
				"type": "string",
				"description": "Description of the task for the subagent to perform"
			},
			"label": {
				"type": "string",
				"description": "Short label for the spawned task"
			},
			"agent_id": {
				"type": "string",
				"description": "Optional: target agent ID to handle the task"
			}
		},
		"required": ["task"]
	}`)
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
	task, _ := args["task"].(string)
	if task == "" {
		return schema.ErrorResult("Error: task is required"), nil
	}
	label, _ := args["label"].(string)
	if label == "" {
		label = task
		if len(label) > 50 {
			label = label[:50]
		}
	}
	agentID, _ := args["agent_id"].(string)

	if agentID != "" && t.canSpawn != nil && !t.canSpawn(agentID) {
		return schema.ErrorResult(fmt.Sprintf("Agent %q is not in the allowed subagent list", agentID)), nil
	}

	ack, err := t.spawner.Spawn(ctx, task, label, agentID, t.channel, t.chatID, t.cb)
	if err != nil {
		return schema.ErrorResult("Spawn failed: " + err.Error()), nil
	}
	return schema.AsyncResult(ack), nil
}
