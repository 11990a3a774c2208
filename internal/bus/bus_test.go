package bus

import (
	"context"
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

func TestInboundFIFO(t *testing.T) {
	b := NewMessageBus(10)
	for _, content := range []string{"one", "two", "three"} {
		b.PublishInbound(schema.InboundMessage{Channel: "x", Content: content})
	}

	for _, want := range []string{"one", "two", "three"} {
		msg, ok := b.ConsumeInbound(context.Background())
		if !ok {
			t.Fatalf("expected message %q, got none", want)
		}
		if msg.Content != want {
			t.Errorf("expected %q, got %q", want, msg.Content)
		}
	}
}

func TestOutboundFIFO(t *testing.T) {
	b := NewMessageBus(10)
	b.PublishOutbound(schema.OutboundMessage{Channel: "x", Content: "a"})
	b.PublishOutbound(schema.OutboundMessage{Channel: "x", Content: "b"})

	msg, ok := b.ConsumeOutbound(context.Background())
	if !ok || msg.Content != "a" {
		t.Fatalf("expected a, got %q (ok=%v)", msg.Content, ok)
	}
	msg, ok = b.ConsumeOutbound(context.Background())
	if !ok || msg.Content != "b" {
		t.Fatalf("expected b, got %q (ok=%v)", msg.Content, ok)
	}
}

func TestConsumeTimesOutEmpty(t *testing.T) {
	b := NewMessageBus(1)
	if _, ok := b.ConsumeInbound(context.Background()); ok {
		t.Error("expected ok=false on empty queue")
	}
}

func TestConsumeCancelled(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("expected ok=false on cancelled context")
	}
}

func TestClosedBusDropsPublishes(t *testing.T) {
	b := NewMessageBus(1)
	b.Close()

	// Must not block even though the queue would be full after two sends.
	b.PublishInbound(schema.InboundMessage{Content: "dropped"})
	b.PublishInbound(schema.InboundMessage{Content: "dropped too"})
	b.PublishOutbound(schema.OutboundMessage{Content: "dropped"})

	if _, ok := b.ConsumeInbound(context.Background()); ok {
		t.Error("expected closed bus to report empty")
	}
	if _, ok := b.ConsumeOutbound(context.Background()); ok {
		t.Error("expected closed bus to report empty")
	}
	if b.InboundLen() != 0 {
		t.Errorf("expected no queued messages, got %d", b.InboundLen())
	}
}

func TestCloseIdempotent(t *testing.T) {
	b := NewMessageBus(1)
	b.Close()
	b.Close()
	if !b.Closed() {
		t.Error("expected bus to report closed")
	}
}
