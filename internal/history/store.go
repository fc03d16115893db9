package history

import (
	"context"
	"sync"
)

// DurableStore is the long-term history store, keyed by room name. The relay
// treats it as an opaque external collaborator; production deployments plug
// in a real database behind this contract.
type DurableStore interface {
	// Load returns the stored room, or ok=false if the room was never
	// persisted. An unknown room is not an error.
	Load(ctx context.Context, room string) (*Room, bool, error)
	// Save replaces the stored room with the given value. Room histories
	// only grow, so implementations must not let a snapshot with fewer
	// messages replace a larger one: write-throughs from concurrent
	// appenders race, and the smaller snapshot is the stale one.
	Save(ctx context.Context, room *Room) error
}

// MemStore is an in-memory DurableStore. It stands in for a real database in
// single-instance deployments, demos, and tests.
type MemStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewMemStore creates an in-memory store holding the given rooms.
func NewMemStore(seed ...*Room) *MemStore {
	s := &MemStore{rooms: make(map[string]*Room, len(seed))}
	for _, room := range seed {
		s.rooms[room.Room] = room.Clone()
	}
	return s
}

func (s *MemStore) Load(_ context.Context, room string) (*Room, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[room]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemStore) Save(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[room.Room]; ok && len(cur.Messages) >= len(room.Messages) {
		return nil
	}
	s.rooms[room.Room] = room.Clone()
	return nil
}

// DemoRooms returns a small fixed set of rooms used to seed the in-memory
// store when demo mode is enabled.
func DemoRooms() []*Room {
	return []*Room{
		{
			Room: "my-room",
			Messages: []Message{
				{User: "Chris", Text: "Hi!"},
				{User: "Chris", Text: "How are you!?"},
				{User: "Megan", Text: "Doing well!"},
				{User: "Chris", Text: "That's great"},
			},
		},
		{
			Room: "new-room",
			Messages: []Message{
				{User: "Chris", Text: "The project is due tomorrow"},
				{User: "Chris", Text: "I am wrapping up the final pieces"},
				{User: "Chris", Text: "Are you ready for the presentation"},
				{User: "Megan", Text: "Of course!"},
			},
		},
	}
}
