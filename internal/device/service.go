// Package device polls for hardware hotplug events and injects them as
// synthetic inbound messages.
package device

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/bus"
	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// pollInterval is how often the USB device tree is rescanned.
const pollInterval = 5 * time.Second

// usbRoot is the usbfs device tree polled for hotplug changes.
const usbRoot = "/dev/bus/usb"

// Service monitors USB hotplug by diffing the device set on each poll.
// Linux only; on other platforms Start is a no-op that waits for ctx.
type Service struct {
	bus        *bus.MessageBus
	monitorUSB bool

	mu          sync.Mutex
	lastChannel string
	lastChatID  string
}

// NewService creates a device service publishing onto b.
func NewService(b *bus.MessageBus, monitorUSB bool) *Service {
	return &Service{bus: b, monitorUSB: monitorUSB}
}

// SetLastRoute records where device events should be delivered.
func (s *Service) SetLastRoute(channel, chatID string) {
	s.mu.Lock()
	s.lastChannel, s.lastChatID = channel, chatID
	s.mu.Unlock()
}

// Start runs the poll loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if !s.monitorUSB || runtime.GOOS != "linux" {
		if s.monitorUSB {
			slog.Info("device: USB monitoring is only supported on linux")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	slog.Info("device: started", "usb", true)
	known := scanDevices()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			current := scanDevices()
			for dev := range current {
				if !known[dev] {
					s.notify(ctx, "USB device connected: "+dev)
				}
			}
			for dev := range known {
				if !current[dev] {
					s.notify(ctx, "USB device disconnected: "+dev)
				}
			}
			known = current
		case <-ctx.Done():
			slog.Info("device: stopped")
			return ctx.Err()
		}
	}
}

func scanDevices() map[string]bool {
	devices := make(map[string]bool)
	_ = filepath.WalkDir(usbRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			devices[path] = true
		}
		return nil
	})
	return devices
}

// notify injects the event as a synthetic inbound message to the last
// active route. Events before any user turn are dropped.
func (s *Service) notify(_ context.Context, message string) {
	s.mu.Lock()
	channel, chatID := s.lastChannel, s.lastChatID
	s.mu.Unlock()
	if channel == "" || chatID == "" {
		return
	}
	slog.Info("device: event", "msg", message)
	s.bus.PublishInbound(schema.InboundMessage{
		Channel:  channel,
		SenderID: "system",
		ChatID:   chatID,
		Content:  "[Device Event] " + message,
		Metadata: map[string]string{"source": "device_service"},
	})
}
