// Package bus is the cross-instance publish/subscribe substrate. Topics are
// room names (plus a reserved broadcast-to-all topic); an envelope published
// on one instance reaches the gateway of every instance subscribed to that
// topic, which then delivers it to its locally-held connections.
package bus

import (
	"context"
	"encoding/json"
)

// BroadcastTopic is the reserved topic every gateway stays subscribed to.
// Envelopes published here are delivered to every connected client on every
// instance regardless of room membership.
const BroadcastTopic = "__broadcast__"

// Envelope is the unit carried by the bus: a named client-facing event plus
// its payload. Exclude, when set, names the connection that must not receive
// the envelope; connection IDs are globally unique so the exclusion works on
// whichever instance holds that connection.
type Envelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
}

// Handler receives envelopes for topics the subscriber has joined. A bus
// calls its handler from a single goroutine.
type Handler func(topic string, env Envelope)

// Bus is the pub/sub contract the gateway composes with. Implementations
// deliver inbound envelopes to the Handler supplied at construction.
type Bus interface {
	// Publish sends the envelope to every instance subscribed to topic.
	Publish(ctx context.Context, topic string, env Envelope) error
	// Subscribe joins the given topics; envelopes published to them are
	// handed to this bus's handler.
	Subscribe(ctx context.Context, topics ...string) error
	// Unsubscribe leaves the given topics.
	Unsubscribe(ctx context.Context, topics ...string) error
	// Close tears down the subscriber side and stops delivery.
	Close() error
}
