package channels

import (
	"context"
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/bus"
)

func TestIsAllowedEmptyAllowlist(t *testing.T) {
	b := NewBase("test", bus.NewMessageBus(1), nil)
	if !b.IsAllowed("") {
		t.Error("empty allowlist must allow everyone, even empty sender")
	}
	if !b.IsAllowed("anyone") {
		t.Error("empty allowlist must allow everyone")
	}
}

func TestIsAllowedPlainID(t *testing.T) {
	b := NewBase("test", bus.NewMessageBus(1), []string{"42"})
	if !b.IsAllowed("42") {
		t.Error("listed id must be allowed")
	}
	if b.IsAllowed("43") {
		t.Error("unlisted id must be rejected")
	}
}

func TestIsAllowedAtUsername(t *testing.T) {
	b := NewBase("test", bus.NewMessageBus(1), []string{"@x"})
	if !b.IsAllowed("x") {
		t.Error(`entry "@x" must match sender "x"`)
	}
	if !b.IsAllowed("x|y") {
		t.Error(`entry "@x" must match compound sender "x|y"`)
	}
	if !b.IsAllowed("42|x") {
		t.Error(`entry "@x" must match compound sender "42|x"`)
	}
	if b.IsAllowed("y") {
		t.Error(`entry "@x" must not match "y"`)
	}
}

func TestIsAllowedStripsSenderAt(t *testing.T) {
	b := NewBase("test", bus.NewMessageBus(1), []string{"x"})
	if !b.IsAllowed("@x") {
		t.Error("leading @ on the sender side must be stripped")
	}
}

func TestHandleMessagePublishes(t *testing.T) {
	mb := bus.NewMessageBus(5)
	b := NewBase("tg", mb, nil)
	b.HandleMessage("u1", "c1", "hello", nil, map[string]string{"k": "v"})

	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected an inbound message")
	}
	if msg.Channel != "tg" || msg.SenderID != "u1" || msg.ChatID != "c1" || msg.Content != "hello" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Metadata["k"] != "v" {
		t.Errorf("metadata lost: %+v", msg.Metadata)
	}
}

func TestHandleMessageRejected(t *testing.T) {
	mb := bus.NewMessageBus(5)
	b := NewBase("tg", mb, []string{"allowed"})
	b.HandleMessage("intruder", "c1", "hello", nil, nil)

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Error("rejected sender must not reach the bus")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("short content must stay whole: %v", got)
	}

	long := "line one\nline two\nline three"
	chunks := splitMessage(long, 12)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for _, c := range chunks {
		if len(c) > 12 {
			t.Errorf("chunk exceeds limit: %q", c)
		}
	}
}
