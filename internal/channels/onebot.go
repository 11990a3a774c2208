package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// OneBotChannel connects to an OneBot v11 implementation over WebSocket.
// Chat ids carry the message type: "private:<uid>" or "group:<gid>".
type OneBotChannel struct {
	Base
	cfg config.OneBotConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	selfID int64

	// Dedup sliding window of recent message ids.
	seen      map[string]bool
	seenQueue []string
}

// NewOneBotChannel creates a OneBotChannel.
func NewOneBotChannel(cfg config.OneBotConfig, b *bus.MessageBus) *OneBotChannel {
	return &OneBotChannel{
		Base: NewBase("onebot", b, cfg.AllowFrom),
		cfg:  cfg,
		seen: make(map[string]bool),
	}
}

func (o *OneBotChannel) Start(ctx context.Context) error {
	if o.cfg.WSURL == "" {
		return fmt.Errorf("onebot: ws_url not configured")
	}
	o.SetRunning(true)
	defer o.SetRunning(false)

	for {
		if err := o.connectOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (o *OneBotChannel) Stop(_ context.Context) error {
	o.SetRunning(false)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil {
		return o.conn.Close()
	}
	return nil
}

func (o *OneBotChannel) connectOnce(ctx context.Context) error {
	header := http.Header{}
	if o.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+o.cfg.AccessToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, o.cfg.WSURL, header)
	if err != nil {
		slog.Warn("onebot: connect failed", "err", err)
		return err
	}
	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
	slog.Info("onebot: connected", "url", o.cfg.WSURL)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var event map[string]any
		if json.Unmarshal(raw, &event) != nil {
			continue
		}
		switch event["post_type"] {
		case "message":
			o.handleEvent(event)
		case "meta_event":
			if event["meta_event_type"] == "lifecycle" {
				if id, ok := event["self_id"].(float64); ok {
					o.mu.Lock()
					o.selfID = int64(id)
					o.mu.Unlock()
				}
			}
		}
	}
}

func (o *OneBotChannel) handleEvent(event map[string]any) {
	msgID := anyToString(event["message_id"])
	if msgID != "" && o.alreadySeen(msgID) {
		return
	}

	userID := anyToString(event["user_id"])
	o.mu.Lock()
	selfID := o.selfID
	o.mu.Unlock()
	if uid, err := strconv.ParseInt(userID, 10, 64); err == nil && uid == selfID {
		return
	}

	content, _ := event["raw_message"].(string)
	if content == "" {
		content, _ = event["message"].(string)
	}

	msgType, _ := event["message_type"].(string)
	var chatID, peerKind string
	if msgType == "group" {
		chatID = "group:" + anyToString(event["group_id"])
		peerKind = "group"
	} else {
		chatID = "private:" + userID
		peerKind = "direct"
	}

	o.HandleMessage(userID, chatID, content, nil, map[string]string{
		"message_id": msgID,
		"peer_kind":  peerKind,
	})
}

func (o *OneBotChannel) Send(_ context.Context, msg schema.OutboundMessage) error {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("onebot: not connected")
	}

	msgType, target, ok := strings.Cut(msg.ChatID, ":")
	if !ok {
		msgType, target = "private", msg.ChatID
	}
	targetID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("onebot: invalid chat_id %q", msg.ChatID)
	}

	action, key := "send_private_msg", "user_id"
	if msgType == "group" {
		action, key = "send_group_msg", "group_id"
	}
	payload := map[string]any{
		"action": action,
		"params": map[string]any{key: targetID, "message": msg.Content},
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return conn.WriteJSON(payload)
}

// alreadySeen records msgID in a bounded sliding window.
func (o *OneBotChannel) alreadySeen(msgID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[msgID] {
		return true
	}
	o.seen[msgID] = true
	o.seenQueue = append(o.seenQueue, msgID)
	if len(o.seenQueue) > 1024 {
		delete(o.seen, o.seenQueue[0])
		o.seenQueue = o.seenQueue[1:]
	}
	return false
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
