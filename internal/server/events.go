// Package server defines the wire protocol spoken over each WebSocket
// connection. Event names are the contract clients depend on and must not
// change.
package server

import "encoding/json"

// Inbound event names.
const (
	EventSignin           = "signin"
	EventUpdateSocketID   = "updateSocketId"
	EventSendMessage      = "sendMessage"
	EventJoinChatBox      = "joinChatBox"
	EventJoinTickets      = "joinTickets"
	EventJoinNotification = "joinNotification"
)

// Outbound event names.
const (
	EventNotification = "notification"
	EventMessage      = "message"
	EventAck          = "ack"
)

// NotificationTopic is the fixed topic joined by the joinNotification event.
const NotificationTopic = "notification"

// inboundEvent is the envelope clients send: an event name, an optional ack
// correlation ID, and the event-specific payload.
type inboundEvent struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundEvent is the envelope the relay sends: pushed events carry only
// Event and Data; acks also echo the inbound ID and report an error string
// when the operation failed.
type outboundEvent struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// joinPayload is the signin / updateSocketId payload.
type joinPayload struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// notificationPayload is pushed on room joins and departures.
type notificationPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
