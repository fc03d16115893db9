// Package server implements the room fan-out protocol: the event handlers
// for signing in, sending messages, presence notifications, and disconnect
// cleanup.
package server

import (
	"encoding/json"

	"chatrelay/internal/history"
)

// dispatch routes one inbound event to its handler. Events for a connection
// are handled sequentially on its read pump, so a handler blocking on the
// cache or the bus suspends only that connection.
func (h *Hub) dispatch(c *Client, ev inboundEvent) {
	switch ev.Event {
	case EventSignin:
		h.handleSignin(c, ev)
	case EventUpdateSocketID:
		h.handleUpdateSocketID(c, ev)
	case EventSendMessage:
		h.handleSendMessage(c, ev)
	case EventJoinChatBox, EventJoinTickets:
		h.handleJoinTopic(c, ev)
	case EventJoinNotification:
		h.subscribe(c, NotificationTopic)
	default:
		c.log.Debug().Str("event", ev.Event).Msg("unknown event")
	}
}

// handleSignin records the session, joins the room topic, announces the
// arrival to everyone else in the room, and acks with the room's history.
// A failed history fetch still leaves the session and subscription in place;
// the client just gets the error instead of the history.
func (h *Hub) handleSignin(c *Client, ev inboundEvent) {
	var p joinPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
		c.ack(ev.ID, "invalid signin payload", nil)
		return
	}

	h.sessions.Add(c.id, p.User, p.Room)
	h.subscribe(c, p.Room)

	// The joiner is excluded from its own arrival notification.
	err := h.Publish(h.ctx, p.Room, EventNotification, notificationPayload{
		Title:       "Someone's here",
		Description: p.User + " just entered the room",
	}, c.id)
	if err != nil {
		h.log.Error().Err(err).Str("room", p.Room).Msg("publish join notification failed")
	}

	room, err := h.history.Room(h.ctx, p.Room)
	if err != nil {
		c.log.Error().Err(err).Str("room", p.Room).Msg("history fetch failed")
		c.ack(ev.ID, err.Error(), nil)
		return
	}
	c.ack(ev.ID, "", room)
}

// handleUpdateSocketID re-associates a reconnected transport with its user
// and room: signin minus the presence notification and the history response.
// Errors are logged, never acked.
func (h *Hub) handleUpdateSocketID(c *Client, ev inboundEvent) {
	var p joinPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
		c.log.Warn().Err(err).Msg("invalid updateSocketId payload")
		return
	}

	h.sessions.Add(c.id, p.User, p.Room)
	h.subscribe(c, p.Room)
}

// handleSendMessage fans a message out to the sender's room across all
// instances and writes it through the cache layer. Without a session the
// message goes nowhere: no publish, no cache write, just the error ack.
func (h *Hub) handleSendMessage(c *Client, ev inboundEvent) {
	var text string
	if err := json.Unmarshal(ev.Data, &text); err != nil {
		c.ack(ev.ID, "invalid message payload", nil)
		return
	}

	sess, ok := h.sessions.Get(c.id)
	if !ok {
		c.ack(ev.ID, ErrSessionNotFound.Error(), nil)
		return
	}

	msg := history.Message{User: sess.User, Text: text}

	// The sender receives its own message: fan-out includes the whole room.
	if err := h.Publish(h.ctx, sess.Room, EventMessage, msg, ""); err != nil {
		h.log.Error().Err(err).Str("room", sess.Room).Msg("publish message failed")
	}

	// Persistence is best-effort: the message is already on its way to
	// live clients, so a failed write never turns into a failed ack.
	if err := h.history.Append(h.ctx, sess.Room, msg); err != nil {
		h.log.Error().Err(err).Str("room", sess.Room).Msg("history append failed")
	}

	c.ack(ev.ID, "", nil)
}

// handleJoinTopic subscribes the connection to an arbitrary topic without
// touching the session (ticket channels, per-entity chat boxes).
func (h *Hub) handleJoinTopic(c *Client, ev inboundEvent) {
	var topic string
	if err := json.Unmarshal(ev.Data, &topic); err != nil || topic == "" {
		c.log.Warn().Str("event", ev.Event).Msg("join event without topic")
		return
	}
	h.subscribe(c, topic)
}

// handleDisconnect removes the session and tells the former room. A second
// disconnect for the same connection finds no session and does nothing.
func (h *Hub) handleDisconnect(c *Client) {
	sess, ok := h.sessions.Delete(c.id)
	if !ok {
		return
	}

	err := h.Publish(h.ctx, sess.Room, EventNotification, notificationPayload{
		Title:       "Someone just left",
		Description: sess.User + " just left the room",
	}, c.id)
	if err != nil {
		h.log.Error().Err(err).Str("room", sess.Room).Msg("publish leave notification failed")
	}
}
