package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Dialer when no pad is advertising. It is the
// only dial error the Connector retries.
var ErrNotFound = errors.New("no WalkingPad found")

// Transport is a connected pad. The Session is its only user once dialed.
type Transport interface {
	// Write sends one complete frame
	Write(ctx context.Context, frame []byte) error
	// Notifications yields one raw frame per notification. It is closed
	// when the link drops or Close is called.
	Notifications() <-chan []byte
	Close() error
}

// Dialer finds and connects to a pad
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }
