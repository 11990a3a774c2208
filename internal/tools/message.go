package tools

import (
	"context"
	"encoding/json"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// MessageTool sends a message to the user on a chat channel.
// Per-turn routing context is injected by the registry before each call;
// the tool must not be shared across concurrent turns.
type MessageTool struct {
	bus     *bus.MessageBus
	channel string
	chatID  string
}

// NewMessageTool creates a MessageTool backed by the bus.
func NewMessageTool(b *bus.MessageBus) *MessageTool {
	return &MessageTool{bus: b}
}

// SetContext implements schema.ContextualTool.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.channel = channel
	t.chatID = chatID
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user. Used for notifications and async task results."
}
func (t *MessageTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {
				"type": "string",
				"description": "The message content to send"
			}
		},
		"required": ["content"]
	}`)
}

func (t *MessageTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return schema.ErrorResult("Error: content is required"), nil
	}
	if t.channel == "" || t.chatID == "" {
		return schema.ErrorResult("Error: no target channel/chat in context"), nil
	}
	t.bus.PublishOutbound(schema.OutboundMessage{
		Channel: t.channel,
		ChatID:  t.chatID,
		Content: content,
	})
	return schema.SilentResult("Message sent"), nil
}

// EchoTool returns its input. Useful for wiring checks.
type EchoTool struct{}

func (EchoTool) Name() string        { return "echo" }
func (EchoTool) Description() string { return "Echo back the provided text. Useful for testing." }
func (EchoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {
				"type": "string",
				"description": "Text to echo back"
			}
		},
		"required": ["text"]
	}`)
}

func (EchoTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	text, _ := args["text"].(string)
	return schema.SuccessResult(text), nil
}
