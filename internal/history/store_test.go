package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreLoadUnknownRoom(t *testing.T) {
	store := NewMemStore()

	room, ok, err := store.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, room)
}

func TestMemStoreSaveReplaces(t *testing.T) {
	store := NewMemStore()

	require.NoError(t, store.Save(context.Background(), &Room{
		Room:     "lobby",
		Messages: []Message{{User: "a", Text: "1"}},
	}))
	require.NoError(t, store.Save(context.Background(), &Room{
		Room:     "lobby",
		Messages: []Message{{User: "a", Text: "1"}, {User: "b", Text: "2"}},
	}))

	room, ok, err := store.Load(context.Background(), "lobby")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, room.Messages, 2)
}

func TestMemStoreSaveIgnoresStaleSnapshot(t *testing.T) {
	store := NewMemStore()

	require.NoError(t, store.Save(context.Background(), &Room{
		Room:     "lobby",
		Messages: []Message{{User: "a", Text: "1"}, {User: "b", Text: "2"}},
	}))
	// A racing write-through that never saw the second message arrives late.
	require.NoError(t, store.Save(context.Background(), &Room{
		Room:     "lobby",
		Messages: []Message{{User: "a", Text: "1"}},
	}))

	room, ok, err := store.Load(context.Background(), "lobby")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, room.Messages, 2, "a smaller snapshot must not shrink stored history")
}

func TestMemStoreLoadReturnsCopy(t *testing.T) {
	store := NewMemStore(&Room{Room: "lobby", Messages: []Message{{User: "a", Text: "1"}}})

	room, ok, err := store.Load(context.Background(), "lobby")
	require.NoError(t, err)
	require.True(t, ok)

	room.Messages[0].Text = "mutated"

	again, _, err := store.Load(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, "1", again.Messages[0].Text, "callers must not share the stored slice")
}

func TestDemoRooms(t *testing.T) {
	rooms := DemoRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "my-room", rooms[0].Room)
	assert.Len(t, rooms[0].Messages, 4)
}
