// Package channels provides the transport adapters and the manager that
// routes outbound messages onto them.
package channels

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// Base holds the state and helpers shared by all channel adapters.
type Base struct {
	channelName string
	bus         *bus.MessageBus
	allowFrom   []string // empty = allow all
	running     atomic.Bool
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name string, b *bus.MessageBus, allowFrom []string) Base {
	return Base{channelName: name, bus: b, allowFrom: allowFrom}
}

// Name returns the channel identifier.
func (b *Base) Name() string { return b.channelName }

// IsRunning reports whether the adapter's receive loop is active.
func (b *Base) IsRunning() bool { return b.running.Load() }

// SetRunning flips the running flag; called by adapters on start/stop.
func (b *Base) SetRunning(v bool) { b.running.Store(v) }

// IsAllowed checks senderID against the allowlist. An empty allowlist
// allows everyone. Sender ids may be compound "id|username"; entries and
// parts are compared after stripping a leading "@".
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	parts := strings.Split(senderID, "|")
	for _, allowed := range b.allowFrom {
		allowedClean := strings.TrimPrefix(allowed, "@")
		for _, part := range parts {
			if strings.TrimPrefix(part, "@") == allowedClean {
				return true
			}
		}
	}
	return false
}

// HandleMessage performs the allowlist check and publishes an inbound
// message onto the bus.
func (b *Base) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !b.IsAllowed(senderID) {
		slog.Debug("message rejected by allowlist", "channel", b.channelName, "sender", senderID)
		return
	}
	b.bus.PublishInbound(schema.InboundMessage{
		Channel:  b.channelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		Metadata: metadata,
	})
}

// splitMessage splits content into chunks within maxLen, preferring newline
// breaks, then spaces, then a hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t\n")
	}
	return chunks
}
