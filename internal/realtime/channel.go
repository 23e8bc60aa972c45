// Package realtime owns the persistent bidirectional connection to the
// messaging server.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// ConnState is the lifecycle state of a Channel.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrUnavailable is returned by emits while the channel is not connected.
	// Nothing is sent and no callback runs.
	ErrUnavailable = errors.New("realtime channel unavailable")
	// ErrAckTimeout is passed to an AckFunc when the server never answered.
	ErrAckTimeout = errors.New("ack timed out")
	// ErrDisconnected is passed to an AckFunc when the connection dropped
	// before the answer arrived.
	ErrDisconnected = errors.New("connection lost before ack")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("realtime channel closed")
)

// Handler receives the raw payload of an inbound event.
type Handler func(data json.RawMessage)

// AckFunc receives the raw acknowledgement payload, or an error when no ack
// will arrive.
type AckFunc func(data json.RawMessage, err error)

// Channel is the event-bus view of the messaging connection. Handlers, state
// listeners and ack callbacks of one Channel never run concurrently with each
// other.
type Channel interface {
	// Connect starts the connection and its reconnection policy. It does not
	// wait for the first successful dial.
	Connect(ctx context.Context) error
	// Close tears the connection down for good.
	Close() error
	// State returns the current connection state.
	State() ConnState
	// OnState registers a state listener and returns its unregister func.
	OnState(fn func(ConnState)) (unsubscribe func())
	// On registers an inbound event handler and returns its unregister func.
	On(event string, h Handler) (unsubscribe func())
	// Emit sends a fire-and-forget event.
	Emit(ctx context.Context, event string, payload any) error
	// EmitWithAck sends an event and calls fn exactly once with the answer,
	// a timeout or a disconnect. When EmitWithAck returns an error fn is
	// never called.
	EmitWithAck(ctx context.Context, event string, payload any, fn AckFunc) error
}

// WaitForState blocks until ch reaches want or ctx is done.
func WaitForState(ctx context.Context, ch Channel, want ConnState) error {
	reached := make(chan struct{}, 1)
	unsubscribe := ch.OnState(func(s ConnState) {
		if s == want {
			select {
			case reached <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if ch.State() == want {
		return nil
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
