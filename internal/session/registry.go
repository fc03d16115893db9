// Package session tracks which display name and room each live connection
// is participating as. The registry is process-local: it only ever answers
// questions about connections held by this instance.
package session

import "sync"

// Session is the live association between a connection and the identity it
// signed in with.
type Session struct {
	User string
	Room string
}

// Registry maps connection IDs to their sessions. It is safe for concurrent
// use and is constructed once at startup, then passed by handle to every
// component that needs lookups.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Add upserts the session for connID. A connection is in at most one room at
// a time, so signing in again overwrites the previous session rather than
// stacking. Calling Add twice with the same arguments is a no-op in effect.
func (r *Registry) Add(connID, user, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = Session{User: user, Room: room}
}

// Get returns the session for connID, or a zero Session and false if the
// connection never signed in.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Delete removes the session for connID and returns what was removed, so the
// caller can announce the departure. Deleting an unknown connection returns a
// zero Session and false.
func (r *Registry) Delete(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return s, ok
}

// Len reports how many connections currently hold a session.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
