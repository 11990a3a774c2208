package channels

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// SlackChannel implements Slack via Socket Mode.
//
// Thread replies encode the ancestor in the chat id as
// "channel_id/thread_ts"; the core never parses it.
type SlackChannel struct {
	Base
	cfg       config.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
}

// NewSlackChannel creates a SlackChannel.
func NewSlackChannel(cfg config.SlackConfig, b *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		Base: NewBase("slack", b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		slog.Warn("slack: bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	s.webClient = slackgo.New(s.cfg.BotToken, slackgo.OptionAppLevelToken(s.cfg.AppToken))
	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	}

	s.smClient = socketmode.New(s.webClient)
	s.SetRunning(true)
	defer s.SetRunning(false)

	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		}
	}
}

func (s *SlackChannel) Stop(_ context.Context) error {
	s.SetRunning(false)
	return nil
}

func (s *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	s.smClient.Ack(*evt.Request)
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	inner := cb.InnerEvent
	if inner.Type != "message" && inner.Type != "app_mention" {
		return
	}
	data, ok := inner.Data.(map[string]interface{})
	if !ok {
		return
	}

	userID, _ := data["user"].(string)
	channelID, _ := data["channel"].(string)
	text, _ := data["text"].(string)
	subtype, _ := data["subtype"].(string)
	channelType, _ := data["channel_type"].(string)
	ts, _ := data["ts"].(string)
	threadTS, _ := data["thread_ts"].(string)

	if subtype != "" || userID == "" || channelID == "" || userID == s.botUserID {
		return
	}
	// Drop plain message events that duplicate an app_mention.
	if inner.Type == "message" && s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">") {
		return
	}

	text = s.stripMention(text)

	chatID := channelID
	if s.cfg.ReplyInThread {
		if threadTS == "" {
			threadTS = ts
		}
		chatID = channelID + "/" + threadTS
	}

	peerKind := "channel"
	if channelType == "im" {
		peerKind = "direct"
	}
	s.HandleMessage(userID, chatID, text, nil, map[string]string{
		"team_id":   cb.TeamID,
		"peer_kind": peerKind,
	})
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return text
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func (s *SlackChannel) Send(ctx context.Context, msg schema.OutboundMessage) error {
	if s.webClient == nil {
		return nil
	}
	channelID, threadTS, _ := strings.Cut(msg.ChatID, "/")

	options := []slackgo.MsgOption{slackgo.MsgOptionText(msg.Content, false)}
	if threadTS != "" {
		options = append(options, slackgo.MsgOptionTS(threadTS))
	}
	_, _, err := s.webClient.PostMessageContext(ctx, channelID, options...)
	return err
}
