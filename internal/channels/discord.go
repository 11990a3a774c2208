package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// discordMaxLen is Discord's message size limit.
const discordMaxLen = 2000

// DiscordChannel implements Discord via the gateway WebSocket.
type DiscordChannel struct {
	Base
	cfg     config.DiscordConfig
	session *discordgo.Session
}

// NewDiscordChannel creates a DiscordChannel.
func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{
		Base: NewBase("discord", b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (d *DiscordChannel) Start(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token not configured")
	}
	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	d.session = session
	d.SetRunning(true)
	defer d.SetRunning(false)
	slog.Info("discord: connected", "user", session.State.User.Username)

	<-ctx.Done()
	_ = session.Close()
	return ctx.Err()
}

func (d *DiscordChannel) Stop(_ context.Context) error {
	d.SetRunning(false)
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	if m.Author.Username != "" {
		senderID += "|" + m.Author.Username
	}

	peerKind := "channel"
	if m.GuildID == "" {
		peerKind = "direct"
	}
	d.HandleMessage(senderID, m.ChannelID, m.Content, nil, map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
		"peer_kind":  peerKind,
	})
}

func (d *DiscordChannel) Send(_ context.Context, msg schema.OutboundMessage) error {
	if d.session == nil {
		return fmt.Errorf("discord: session not running")
	}
	for _, chunk := range splitMessage(msg.Content, discordMaxLen) {
		if _, err := d.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return err
		}
	}
	return nil
}
