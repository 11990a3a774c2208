package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/providers"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// truncationNotice is appended when a turn hits the iteration cap.
const truncationNotice = "I reached the tool iteration limit before finishing. Ask me to continue if you need more."

// Loop consumes inbound messages, orchestrates bounded tool-calling turns
// against the fallback chain, and emits outbound replies.
//
// Exactly one Run consumer drains the bus at a time; within a turn, tool
// calls execute sequentially in provider order, and the session is held
// exclusively until saved.
type Loop struct {
	bus      *bus.MessageBus
	registry *Registry
	chain    *providers.FallbackChain

	// OnRoute, when set, observes each turn's delivery destination.
	// Heartbeat and device services use it to learn where to report.
	OnRoute func(channel, chatID string)
}

// NewLoop creates an agent loop over the bus, agent registry, and chain.
func NewLoop(b *bus.MessageBus, registry *Registry, chain *providers.FallbackChain) *Loop {
	return &Loop{bus: b, registry: registry, chain: chain}
}

// Run drains the inbound queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("agent loop started")
	for {
		if ctx.Err() != nil {
			slog.Info("agent loop stopping")
			return ctx.Err()
		}
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			if l.bus.Closed() {
				slog.Info("agent loop stopping, bus closed")
				return nil
			}
			continue
		}
		l.processMessage(ctx, msg)
	}
}

// ProcessDirect performs a single turn synchronously and returns the final
// reply text. Used by the CLI and the scheduler handlers; nothing is
// published for the final reply (tool-emitted messages still go out).
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string {
	msg := schema.InboundMessage{
		Channel:    channel,
		SenderID:   "user",
		ChatID:     chatID,
		Content:    content,
		SessionKey: sessionKey,
	}
	inst, key := l.selectAgent(&msg)
	return l.runTurn(ctx, inst, key, msg)
}

func (l *Loop) processMessage(ctx context.Context, msg schema.InboundMessage) {
	slog.Info("processing message",
		"channel", msg.Channel, "sender", msg.SenderID, "content", msg.Preview())

	inst, key := l.selectAgent(&msg)
	if l.OnRoute != nil && msg.Channel != "" && msg.ChatID != "" {
		l.OnRoute(msg.Channel, msg.ChatID)
	}

	final := l.runTurn(ctx, inst, key, msg)
	if final != "" {
		l.bus.PublishOutbound(schema.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: final,
		})
	}
}

// selectAgent resolves the route for msg and fills in its session key.
// A pre-set session key (synthetic scheduler turns) bypasses routing and
// runs on the agent named in metadata, defaulting to the default agent.
func (l *Loop) selectAgent(msg *schema.InboundMessage) (*Instance, string) {
	if msg.SessionKey != "" {
		inst := l.registry.Get(msg.Metadata["agent_id"])
		if inst == nil {
			inst = l.registry.Default()
		}
		return inst, msg.SessionKey
	}

	input := schema.RouteInput{
		Channel:   msg.Channel,
		AccountID: msg.Metadata["account_id"],
		GuildID:   msg.Metadata["guild_id"],
		TeamID:    msg.Metadata["team_id"],
	}
	if msg.ChatID != "" {
		kind := msg.Metadata["peer_kind"]
		if kind == "" {
			kind = "direct"
		}
		input.Peer = &schema.RoutePeer{Kind: kind, ID: msg.ChatID}
	}

	route, inst := l.registry.Resolve(input)
	msg.SessionKey = route.SessionKey
	return inst, route.SessionKey
}

// runTurn executes one bounded tool-calling conversation. The final
// assistant reply is appended to the session and returned; tool results
// destined for the user are published inline as they occur.
func (l *Loop) runTurn(ctx context.Context, inst *Instance, key string, msg schema.InboundMessage) string {
	history := inst.Sessions.GetHistory(key)
	summary := inst.Sessions.GetSummary(key)
	inst.Sessions.AddMessage(key, schema.NewUserMessage(msg.Content))

	messages := inst.Context.BuildMessages(history, summary, msg.Content)
	defs := inst.Tools.Definitions()
	opts := schema.ChatOptions{
		Model:       inst.Model,
		MaxTokens:   inst.MaxTokens,
		Temperature: inst.Temperature,
	}

	// Async tool results (spawned sub-agents) land back in this session.
	asyncCb := func(res schema.ToolResult) {
		content := res.ForUser
		if content == "" {
			content = res.ForLLM
		}
		if content == "" {
			return
		}
		inst.Sessions.AddMessage(key, schema.NewAssistantMessage(content, nil))
		l.saveSession(inst, key)
		l.bus.PublishOutbound(schema.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: content,
		})
	}

	for i := 0; i < inst.MaxIterations; i++ {
		resp, _, err := l.chain.Execute(ctx, inst.Candidates, messages, defs, opts)
		if err != nil {
			var exhausted *providers.ErrProvidersExhausted
			if errors.As(err, &exhausted) {
				slog.Error("provider chain exhausted",
					"agent", inst.ID, "attempts", len(exhausted.Attempts))
			} else {
				slog.Error("provider call failed", "agent", inst.ID, "err", err)
			}
			final := "Sorry, I couldn't reach any language model right now. Please try again later."
			inst.Sessions.AddMessage(key, schema.NewAssistantMessage(final, nil))
			l.saveSession(inst, key)
			return final
		}

		if !resp.HasToolCalls() {
			inst.Sessions.AddMessage(key, schema.NewAssistantMessage(resp.Content, nil))
			l.saveSession(inst, key)
			return resp.Content
		}

		assistant := schema.NewAssistantMessage(resp.Content, resp.ToolCalls)
		inst.Sessions.AddMessage(key, assistant)
		messages = append(messages, assistant)

		for _, call := range resp.ToolCalls {
			slog.Info("tool call", "agent", inst.ID, "tool", call.Name)
			result := inst.Tools.Execute(ctx, call.Name, call.Arguments, msg.Channel, msg.ChatID, asyncCb)

			toolMsg := schema.NewToolResultMessage(call.ID, result.ForLLM)
			inst.Sessions.AddMessage(key, toolMsg)
			messages = append(messages, toolMsg)

			if !result.Silent && result.ForUser != "" {
				l.bus.PublishOutbound(schema.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: result.ForUser,
				})
			}
		}
	}

	inst.Sessions.AddMessage(key, schema.NewAssistantMessage(truncationNotice, nil))
	l.saveSession(inst, key)
	return truncationNotice
}

// saveSession persists the session; failures are logged and the in-memory
// state is preserved so a later save may succeed.
func (l *Loop) saveSession(inst *Instance, key string) {
	if err := inst.Sessions.Save(key); err != nil {
		slog.Warn("session save failed", "agent", inst.ID, "key", key, "err", err)
	}
}

// Registry exposes the agent registry (used by CLI commands).
func (l *Loop) Registry() *Registry { return l.registry }

// String identifies the loop in logs.
func (l *Loop) String() string {
	return fmt.Sprintf("agent.Loop(%d agents)", len(l.registry.agents))
}
