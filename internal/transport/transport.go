// Package transport abstracts the bidirectional messaging primitive a session runs on.
// A host listens on a room code, participants dial it, and each side exchanges
// protocol envelopes over a Channel. Delivery is FIFO per channel only.
package transport

import (
	"context"
	"errors"

	"quizroom/internal/protocol"
)

var (
	// ErrClosed is returned by Send after either side closed the channel.
	ErrClosed = errors.New("channel closed")
	// ErrBackpressure is returned when the peer is not draining its queue.
	ErrBackpressure = errors.New("channel send queue full")
	// ErrAddressInUse is returned when a room code is already being listened on.
	ErrAddressInUse = errors.New("address already in use")
)

// Channel is one participant connection. Send never blocks on a slow peer.
// Inbound is closed once the channel is closed by either side.
type Channel interface {
	ID() string
	Send(ctx context.Context, env protocol.Envelope) error
	Inbound() <-chan protocol.Envelope
	Close() error
}

// Listener yields channels dialed to a room code. Incoming is closed by Close.
type Listener interface {
	Addr() string
	Incoming() <-chan Channel
	Close() error
}

// Dialer connects a participant to a room code.
type Dialer interface {
	Dial(ctx context.Context, address string) (Channel, error)
}
