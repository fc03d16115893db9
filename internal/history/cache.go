package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Service implements the cache-aside pattern over a KV cache and a durable
// store. Reads go through the cache and populate it on a miss; appends update
// the cache synchronously and write through to the store without blocking the
// caller.
type Service struct {
	kv    KV
	store DurableStore
	log   zerolog.Logger

	// roomsMu guards rooms; each per-room mutex serializes the
	// read-modify-write in Append so two concurrent appends on this
	// instance can never both read stale state.
	roomsMu sync.Mutex
	rooms   map[string]*sync.Mutex

	wg sync.WaitGroup
}

// NewService creates a cache-aside history service.
func NewService(kv KV, store DurableStore, log zerolog.Logger) *Service {
	return &Service{
		kv:    kv,
		store: store,
		log:   log.With().Str("component", "history").Logger(),
		rooms: make(map[string]*sync.Mutex),
	}
}

// Room returns the history for the named room. Cache hit: decode and return.
// Cache miss: read the durable store, populate the cache with what it holds,
// and return it. Unknown room: an empty room and no error. If the cache is
// unreachable the store's value is returned without caching.
func (s *Service) Room(ctx context.Context, name string) (*Room, error) {
	cacheable := true

	raw, err := s.kv.Get(ctx, name)
	switch {
	case err == nil:
		room := &Room{}
		if err := json.Unmarshal(raw, room); err != nil {
			return nil, fmt.Errorf("decode cached room %q: %w", name, err)
		}
		return room, nil
	case errors.Is(err, ErrMiss):
	default:
		// Cache unreachable: degrade to the durable store alone.
		s.log.Warn().Err(err).Str("room", name).Msg("cache read failed, falling back to durable store")
		cacheable = false
	}

	room, ok, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load room %q: %w", name, err)
	}
	if !ok {
		return &Room{Room: name}, nil
	}
	if cacheable {
		if err := s.populate(ctx, room); err != nil {
			s.log.Warn().Err(err).Str("room", name).Msg("cache populate failed")
		}
	}
	return room, nil
}

// Append adds a message to the room's history. The cache is updated before
// Append returns; the durable store write runs in its own goroutine so
// persistence never blocks message delivery. Persistence failures are logged,
// not retried. If the existing history cannot be read at all, Append writes
// nothing and returns the read error.
func (s *Service) Append(ctx context.Context, name string, msg Message) error {
	mu := s.roomLock(name)
	mu.Lock()
	defer mu.Unlock()

	base, err := s.Room(ctx, name)
	if err != nil {
		// The base history is unreadable. Caching a one-message room
		// here would shadow whatever the store holds, and the
		// write-through would replace it outright once the store
		// recovers. The message was already delivered live, so skip
		// both writes.
		s.log.Error().Err(err).Str("room", name).Msg("history unreadable, skipping persistence write")
		return fmt.Errorf("append to room %q: %w", name, err)
	}
	if base.Room == "" {
		base.Room = name
	}

	// The cache entry is the serialization point for appenders on other
	// instances: the transform re-reads the entry at commit time, so a
	// concurrent append from elsewhere lands in this snapshot instead of
	// being overwritten by it.
	merged := base
	err = s.kv.Update(ctx, name, func(old []byte, miss bool) ([]byte, error) {
		room := base.Clone()
		if !miss {
			room = &Room{}
			if err := json.Unmarshal(old, room); err != nil {
				return nil, fmt.Errorf("decode cached room %q: %w", name, err)
			}
			if room.Room == "" {
				room.Room = name
			}
		}
		room.Messages = append(room.Messages, msg)
		merged = room
		return json.Marshal(room)
	})
	if err != nil {
		// Cache unreachable: degrade to what the read-through returned
		// plus the new message, and still write it through.
		s.log.Error().Err(err).Str("room", name).Msg("cache write failed")
		merged = base.Clone()
		merged.Messages = append(merged.Messages, msg)
	}

	snapshot := merged.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
			s.log.Error().Err(err).Str("room", name).Msg("durable store write failed")
		}
	}()
	return nil
}

// Close waits for in-flight durable store writes to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// populate fills the cache entry from a store read, but only if it is still
// absent: an entry written by a concurrent append is newer than our read and
// must not be rolled back.
func (s *Service) populate(ctx context.Context, room *Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %q: %w", room.Room, err)
	}
	return s.kv.Update(ctx, room.Room, func(old []byte, miss bool) ([]byte, error) {
		if !miss {
			return old, nil
		}
		return raw, nil
	})
}

func (s *Service) roomLock(name string) *sync.Mutex {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	mu, ok := s.rooms[name]
	if !ok {
		mu = &sync.Mutex{}
		s.rooms[name] = mu
	}
	return mu
}
