// Package fanout propagates outbound events to every server process. A
// broadcast published on one node must reach the subscribers of the same
// room/channel on all nodes; delivery is at-most-once, with no ordering
// guarantee between publishers.
package fanout

import (
	"context"
	"encoding/json"
)

// Envelope is the unit of cross-node propagation. It is transient and never
// persisted.
type Envelope struct {
	// Channel is the room/channel routing key, e.g. "room:42" or "dm:7".
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`

	// OriginConn identifies the connection that caused the event.
	// When ExcludeOrigin is set, delivery skips that connection. Direct
	// messages use this to suppress the sender echo.
	OriginConn    string `json:"originConn,omitempty"`
	ExcludeOrigin bool   `json:"excludeOrigin,omitempty"`
}

// DeliverFunc re-emits a received envelope to locally attached connections.
type DeliverFunc func(env Envelope)

type Bus interface {
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers the local delivery callback and starts consuming.
	// The callback also receives this node's own publishes; Subscribe may be
	// called once per bus.
	Subscribe(ctx context.Context, deliver DeliverFunc) error

	Close() error
}
