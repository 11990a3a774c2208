package schema

import "context"

// Channel is the contract every transport adapter must implement.
//
// Start blocks until the adapter's receive loop ends or ctx is cancelled.
// Send translates an OutboundMessage into a transport API call; idempotence
// is not required.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}
