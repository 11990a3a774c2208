package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// waLogger adapts whatsmeow's logger onto slog.
type waLogger struct{}

func (waLogger) Errorf(msg string, args ...interface{}) {
	slog.Error("whatsapp: " + fmt.Sprintf(msg, args...))
}
func (waLogger) Warnf(msg string, args ...interface{}) {
	slog.Warn("whatsapp: " + fmt.Sprintf(msg, args...))
}
func (waLogger) Infof(msg string, args ...interface{}) {
	slog.Info("whatsapp: " + fmt.Sprintf(msg, args...))
}
func (waLogger) Debugf(string, ...interface{}) {}
func (l waLogger) Sub(string) waLog.Logger     { return l }

// WhatsAppChannel implements WhatsApp via whatsmeow. The device session is
// stored in a SQLite database; pairing must have happened beforehand.
type WhatsAppChannel struct {
	Base
	cfg    config.WhatsAppConfig
	client *whatsmeow.Client
}

// NewWhatsAppChannel creates a WhatsAppChannel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, b *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		Base: NewBase("whatsapp", b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (w *WhatsAppChannel) Start(ctx context.Context) error {
	if w.cfg.DBPath == "" {
		return fmt.Errorf("whatsapp: db_path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(w.cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("whatsapp: create db directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+w.cfg.DBPath+"?_pragma=foreign_keys(1)", waLogger{})
	if err != nil {
		return fmt.Errorf("whatsapp: open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: get device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLogger{})
	if client.Store.ID == nil {
		return fmt.Errorf("whatsapp: not authenticated — pair this device first")
	}
	client.AddEventHandler(w.handleEvent)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	w.client = client
	w.SetRunning(true)
	defer w.SetRunning(false)
	slog.Info("whatsapp: connected", "user", client.Store.ID.User)

	<-ctx.Done()
	client.Disconnect()
	return ctx.Err()
}

func (w *WhatsAppChannel) Stop(_ context.Context) error {
	w.SetRunning(false)
	if w.client != nil {
		w.client.Disconnect()
	}
	return nil
}

func (w *WhatsAppChannel) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	if msg.Info.IsFromMe {
		return
	}

	content := ""
	switch {
	case msg.Message.Conversation != nil:
		content = msg.Message.GetConversation()
	case msg.Message.ExtendedTextMessage != nil:
		content = msg.Message.ExtendedTextMessage.GetText()
	case msg.Message.ImageMessage != nil:
		content = msg.Message.ImageMessage.GetCaption() + "\n[image received]"
	}
	if content == "" {
		return
	}

	peerKind := "direct"
	if msg.Info.IsGroup {
		peerKind = "group"
	}
	w.HandleMessage(msg.Info.Sender.User, msg.Info.Chat.String(), content, nil, map[string]string{
		"message_id": string(msg.Info.ID),
		"peer_kind":  peerKind,
	})
}

func (w *WhatsAppChannel) Send(ctx context.Context, msg schema.OutboundMessage) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp: not connected")
	}
	recipient, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid chat_id %q: %w", msg.ChatID, err)
	}
	for _, chunk := range splitMessage(msg.Content, 4096) {
		_, err := w.client.SendMessage(ctx, recipient, &waE2E.Message{
			Conversation: proto.String(chunk),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
