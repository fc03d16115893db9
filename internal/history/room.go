// Package history keeps per-room message history available with low latency.
// It layers a cache-aside service over a fast key-value cache and an opaque
// durable store: reads check the cache first and fall back to the store on a
// miss, writes update the cache synchronously and the store best-effort.
package history

// Message is a single chat message. Messages are immutable once created and
// append to exactly one room's sequence.
type Message struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Room is the unit of storage: a room name plus its ordered message history.
// The same JSON layout is used in the cache and in the durable store.
type Room struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// Clone returns a deep copy of the room, so callers can hand it to another
// goroutine without sharing the message slice.
func (r *Room) Clone() *Room {
	cp := &Room{Room: r.Room}
	if len(r.Messages) > 0 {
		cp.Messages = make([]Message, len(r.Messages))
		copy(cp.Messages, r.Messages)
	}
	return cp
}
