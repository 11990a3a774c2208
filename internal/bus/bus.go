// Package bus provides the bounded in-process message bus that decouples
// chat channels from the agent core.
//
// Two logical queues: inbound (channels → agent) and outbound
// (agent → dispatcher). Publishing applies backpressure when a queue is
// full; consuming polls with a short timeout so consumers stay responsive
// to shutdown. A closed bus silently drops publishes and reports "empty"
// from consumes; in-flight messages at shutdown may be lost.
package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// DefaultCapacity bounds each queue when no explicit size is given.
const DefaultCapacity = 100

// pollTimeout is how long a consume blocks before returning empty.
const pollTimeout = time.Second

// MessageBus is the default Bus implementation backed by buffered channels.
type MessageBus struct {
	inbound  chan schema.InboundMessage
	outbound chan schema.OutboundMessage
	closed   atomic.Bool
}

// NewMessageBus creates a bus with the given per-queue capacity.
// capacity <= 0 selects DefaultCapacity.
func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan schema.InboundMessage, capacity),
		outbound: make(chan schema.OutboundMessage, capacity),
	}
}

// PublishInbound delivers a message from a channel to the agent.
// Blocks while the inbound queue is full; drops silently once closed.
func (b *MessageBus) PublishInbound(msg schema.InboundMessage) {
	if b.closed.Load() {
		return
	}
	b.inbound <- msg
}

// PublishOutbound delivers a reply from the agent to the dispatcher.
// Blocks while the outbound queue is full; drops silently once closed.
func (b *MessageBus) PublishOutbound(msg schema.OutboundMessage) {
	if b.closed.Load() {
		return
	}
	b.outbound <- msg
}

// ConsumeInbound returns the next inbound message, or ok=false after the
// poll timeout, on cancellation, or when the bus is closed.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (schema.InboundMessage, bool) {
	if b.closed.Load() {
		return schema.InboundMessage{}, false
	}
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-time.After(pollTimeout):
		return schema.InboundMessage{}, false
	case <-ctx.Done():
		return schema.InboundMessage{}, false
	}
}

// ConsumeOutbound returns the next outbound message, or ok=false after the
// poll timeout, on cancellation, or when the bus is closed.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (schema.OutboundMessage, bool) {
	if b.closed.Load() {
		return schema.OutboundMessage{}, false
	}
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-time.After(pollTimeout):
		return schema.OutboundMessage{}, false
	case <-ctx.Done():
		return schema.OutboundMessage{}, false
	}
}

// InboundLen reports the number of queued inbound messages.
func (b *MessageBus) InboundLen() int { return len(b.inbound) }

// OutboundLen reports the number of queued outbound messages.
func (b *MessageBus) OutboundLen() int { return len(b.outbound) }

// Close marks the bus closed. Idempotent. Queued messages are abandoned.
func (b *MessageBus) Close() { b.closed.Store(true) }

// Closed reports whether Close has been called.
func (b *MessageBus) Closed() bool { return b.closed.Load() }
