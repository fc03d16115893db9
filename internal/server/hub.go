// Package server coordinates client registration, topic subscriptions, and
// cross-instance fan-out for the chat relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/bus"
	"chatrelay/internal/history"
	"chatrelay/internal/session"
)

// Hub is the connection gateway for one relay instance. It owns the locally
// connected clients, tracks which topics each is subscribed to, and bridges
// them onto the shared bus: envelopes published anywhere are delivered here
// to the local subscribers of their topic.
type Hub struct {
	log      zerolog.Logger
	sessions *session.Registry
	history  *history.Service
	bus      bus.Bus

	mu      sync.RWMutex
	clients map[string]*Client
	topics  map[string]map[string]*Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a gateway wired to the session registry, the history
// service, and a bus. The bus is built through connect so its delivery loop
// can hand envelopes straight back to the hub; the hub subscribes to the
// broadcast topic before returning.
func NewHub(sessions *session.Registry, hist *history.Service, connect func(bus.Handler) (bus.Bus, error), log zerolog.Logger) (*Hub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		sessions: sessions,
		history:  hist,
		clients:  make(map[string]*Client),
		topics:   make(map[string]map[string]*Client),
		ctx:      ctx,
		cancel:   cancel,
	}

	b, err := connect(h.deliver)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	h.bus = b

	if err := h.bus.Subscribe(ctx, bus.BroadcastTopic); err != nil {
		cancel()
		_ = h.bus.Close()
		return nil, fmt.Errorf("subscribe broadcast topic: %w", err)
	}

	return h, nil
}

// Register adds a client to the hub and starts its read/write pumps.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	c.closed = false
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("conn", c.id).Str("addr", c.addr).Int("clients", count).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// unregister removes a client from the hub and every topic it joined,
// releasing bus subscriptions that no longer have local members. Safe to call
// more than once per client.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	c.closed = true

	var drained []string
	for topic, members := range h.topics {
		if _, ok := members[c.id]; !ok {
			continue
		}
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.topics, topic)
			drained = append(drained, topic)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	h.log.Info().Str("conn", c.id).Int("clients", count).Msg("client unregistered")

	if len(drained) > 0 {
		if err := h.bus.Unsubscribe(h.ctx, drained...); err != nil {
			h.log.Warn().Err(err).Strs("topics", drained).Msg("bus unsubscribe failed")
		}
	}
}

// subscribe joins a client to a topic, taking out a bus subscription when the
// topic gains its first local member.
func (h *Hub) subscribe(c *Client, topic string) {
	h.mu.Lock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*Client)
		h.topics[topic] = members
	}
	members[c.id] = c
	h.mu.Unlock()

	if !ok {
		if err := h.bus.Subscribe(h.ctx, topic); err != nil {
			// Local delivery still works; cross-instance traffic for
			// this topic resumes when the bus does.
			h.log.Error().Err(err).Str("topic", topic).Msg("bus subscribe failed")
		}
	}
}

// Publish wraps data in an envelope and sends it to every instance
// subscribed to topic. exclude names a connection to skip on delivery.
func (h *Hub) Publish(ctx context.Context, topic, event string, data any, exclude string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	return h.bus.Publish(ctx, topic, bus.Envelope{
		Event:   event,
		Data:    raw,
		Exclude: exclude,
	})
}

// deliver hands a bus envelope to the local subscribers of its topic. The
// broadcast topic reaches every connected client.
func (h *Hub) deliver(topic string, env bus.Envelope) {
	payload, err := json.Marshal(outboundEvent{Event: env.Event, Data: env.Data})
	if err != nil {
		h.log.Error().Err(err).Str("event", env.Event).Msg("encode outbound event failed")
		return
	}

	targets := h.snapshot(topic)
	var failed []*Client
	for _, c := range targets {
		if env.Exclude != "" && c.id == env.Exclude {
			continue
		}
		if !h.safeSend(c, payload) {
			failed = append(failed, c)
		}
	}

	// Clients with a full send buffer are dropped rather than allowed to
	// stall delivery for the rest of the room.
	for _, c := range failed {
		h.log.Warn().Str("conn", c.id).Msg("dropping client with full send buffer")
		c.close()
		h.unregister(c)
	}
}

// snapshot returns the clients subscribed to topic, or all clients for the
// broadcast topic.
func (h *Hub) snapshot(topic string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var source map[string]*Client
	if topic == bus.BroadcastTopic {
		source = h.clients
	} else {
		source = h.topics[topic]
	}

	targets := make([]*Client, 0, len(source))
	for _, c := range source {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) safeSend(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.id]; !ok || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Shutdown closes the bus, disconnects all clients, and waits for their
// pumps to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("shutting down hub")
	h.cancel()

	if err := h.bus.Close(); err != nil {
		h.log.Warn().Err(err).Msg("bus close failed")
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
