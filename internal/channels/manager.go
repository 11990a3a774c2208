package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Manager owns the adapter instances and routes outbound messages to them
// by channel name.
type Manager struct {
	bus      *bus.MessageBus
	channels map[string]schema.Channel

	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

// NewManager creates a Manager with every enabled adapter registered.
func NewManager(cfg *config.Config, b *bus.MessageBus) *Manager {
	m := &Manager{
		bus:      b,
		channels: make(map[string]schema.Channel),
		cancel:   make(map[string]context.CancelFunc),
	}

	if cfg.Channels.Telegram.Enabled {
		m.Add(NewTelegramChannel(cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Discord.Enabled {
		m.Add(NewDiscordChannel(cfg.Channels.Discord, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.Add(NewSlackChannel(cfg.Channels.Slack, b))
	}
	if cfg.Channels.WhatsApp.Enabled {
		m.Add(NewWhatsAppChannel(cfg.Channels.WhatsApp, b))
	}
	if cfg.Channels.OneBot.Enabled {
		m.Add(NewOneBotChannel(cfg.Channels.OneBot, b))
	}
	return m
}

// Add registers an adapter under its channel name.
func (m *Manager) Add(ch schema.Channel) {
	m.channels[ch.Name()] = ch
	slog.Info("channel enabled", "name", ch.Name())
}

// Get returns the adapter with the given name, or nil.
func (m *Manager) Get(name string) schema.Channel { return m.channels[name] }

// Names returns the registered channel names.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	return names
}

// StartAll starts every adapter sequentially, logging per-channel failures
// without aborting the batch. Each adapter's receive loop runs in its own
// goroutine until StopAll or ctx cancellation.
func (m *Manager) StartAll(ctx context.Context) {
	for name, ch := range m.channels {
		chCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.cancel[name] = cancel
		m.mu.Unlock()

		go func(n string, c schema.Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(chCtx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}
}

// StopAll stops every running adapter sequentially; failures are logged.
func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		m.mu.Lock()
		if cancel, ok := m.cancel[name]; ok {
			cancel()
			delete(m.cancel, name)
		}
		m.mu.Unlock()
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "name", name, "err", err)
		}
	}
}

// SendToChannel delivers content to chatID on the named channel. A no-op
// when the channel is absent or not running.
func (m *Manager) SendToChannel(ctx context.Context, name, chatID, content string) {
	ch, ok := m.channels[name]
	if !ok || !ch.IsRunning() {
		slog.Debug("dropping outbound for unavailable channel", "channel", name)
		return
	}
	msg := schema.OutboundMessage{Channel: name, ChatID: chatID, Content: content}
	if err := ch.Send(ctx, msg); err != nil {
		slog.Error("send error", "channel", name, "err", err)
	}
}

// DispatchOutbound drains the outbound queue and routes each message to its
// channel. Runs until ctx is cancelled.
func (m *Manager) DispatchOutbound(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			if m.bus.Closed() {
				return
			}
			continue
		}
		m.SendToChannel(ctx, msg.Channel, msg.ChatID, msg.Content)
	}
}
