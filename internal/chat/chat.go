// Package chat implements the chat domain: validating and persisting
// messages, creating chats, reading history and aggregating a user's
// conversation list. Everything here talks to the store only; live
// connections are handled by package server.
package chat

import (
	"context"
	"time"
)

const defaultStoreTimeout = 5 * time.Second

// storeContext bounds the store calls of a single operation.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Now returns the current UTC time at millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
