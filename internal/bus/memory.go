package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by bus operations after Close.
var ErrClosed = errors.New("bus: closed")

// Broker is an in-process pub/sub broker. Each gateway connects to it and
// receives its own Bus; publishing on one connection reaches every connection
// subscribed to the topic. It serves single-instance deployments without
// Redis, and lets tests run several hubs against one shared bus.
type Broker struct {
	mu    sync.RWMutex
	conns map[*Memory]struct{}
}

// NewBroker creates an empty in-process broker.
func NewBroker() *Broker {
	return &Broker{conns: make(map[*Memory]struct{})}
}

// Connect attaches a subscriber and returns its Bus handle. Every connection
// starts subscribed to BroadcastTopic.
func (b *Broker) Connect(handler Handler) *Memory {
	m := &Memory{
		broker:  b,
		handler: handler,
		topics:  map[string]struct{}{BroadcastTopic: {}},
	}
	b.mu.Lock()
	b.conns[m] = struct{}{}
	b.mu.Unlock()
	return m
}

func (b *Broker) publish(topic string, env Envelope) {
	b.mu.RLock()
	conns := make([]*Memory, 0, len(b.conns))
	for m := range b.conns {
		conns = append(conns, m)
	}
	b.mu.RUnlock()

	for _, m := range conns {
		m.deliver(topic, env)
	}
}

// Memory is one connection to a Broker, implementing Bus.
type Memory struct {
	broker  *Broker
	handler Handler

	mu     sync.RWMutex
	topics map[string]struct{}
	closed bool
}

func (m *Memory) Publish(_ context.Context, topic string, env Envelope) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	m.broker.publish(topic, env)
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topics ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, t := range topics {
		m.topics[t] = struct{}{}
	}
	return nil
}

func (m *Memory) Unsubscribe(_ context.Context, topics ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, t := range topics {
		delete(m.topics, t)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.broker.mu.Lock()
	delete(m.broker.conns, m)
	m.broker.mu.Unlock()
	return nil
}

func (m *Memory) deliver(topic string, env Envelope) {
	m.mu.RLock()
	_, subscribed := m.topics[topic]
	closed := m.closed
	m.mu.RUnlock()
	if closed || !subscribed {
		return
	}
	m.handler(topic, env)
}
