package trigger

import (
	"context"

	"github.com/roach88/friendsync/internal/ir"
)

// Outbox is the pending-change surface of a store.
type Outbox interface {
	// Pending returns up to limit unacknowledged changes in outbox order.
	Pending(ctx context.Context, limit int) ([]ir.Change, error)

	// Ack marks a change delivered.
	Ack(ctx context.Context, seq int64) error

	// Release records a failed delivery attempt; the change stays pending.
	Release(ctx context.Context, seq int64) error
}

// Handler consumes one notification. A nil error acks it.
type Handler interface {
	Deliver(ctx context.Context, n ir.Notification) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, n ir.Notification) error

// Deliver calls f.
func (f HandlerFunc) Deliver(ctx context.Context, n ir.Notification) error {
	return f(ctx, n)
}
