// Package feed implements the brokerage push-feed WebSocket client.
package feed

import (
	"context"
	"time"
)

// Stream is a push feed delivering raw quote messages.
type Stream interface {
	// Subscribe adds instrument keys to the live subscription.
	Subscribe(ctx context.Context, instrumentKeys []string) error

	// Messages returns raw message payloads in arrival order.
	Messages() <-chan []byte

	// States returns connection state transitions.
	States() <-chan StateChange

	// Close closes the connection. Both channels are closed afterwards.
	Close() error
}

// ConnState is the connection state of a push feed.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StateChange reports a connection transition.
type StateChange struct {
	State ConnState
	At    time.Time
	Err   error // cause of a disconnect, nil otherwise
}

// Subscription request modes.
const (
	ModeFull = "full"
	ModeLTPC = "ltpc"
)

// subscribeRequest is the feed's subscribe/unsubscribe message.
type subscribeRequest struct {
	GUID   string        `json:"guid"`
	Method string        `json:"method"`
	Data   subscribeData `json:"data"`
}

type subscribeData struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}
