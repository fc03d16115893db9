package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered envelopes for assertions.
type recorder struct {
	mu   sync.Mutex
	got  []Envelope
	tops []string
}

func (r *recorder) handler(topic string, env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, env)
	r.tops = append(r.tops, topic)
}

func (r *recorder) envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.got...)
}

func TestPublishReachesSubscribers(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	subscribed := &recorder{}
	other := &recorder{}
	a := broker.Connect(subscribed.handler)
	b := broker.Connect(other.handler)

	require.NoError(t, a.Subscribe(ctx, "lobby"))

	env := Envelope{Event: "message", Data: json.RawMessage(`{"user":"alice","text":"hi"}`)}
	require.NoError(t, b.Publish(ctx, "lobby", env))

	require.Len(t, subscribed.envelopes(), 1)
	assert.Equal(t, env, subscribed.envelopes()[0])
	assert.Empty(t, other.envelopes(), "unsubscribed connection must not receive room traffic")
}

func TestPublisherAlsoReceivesOwnTopic(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	rec := &recorder{}
	a := broker.Connect(rec.handler)
	require.NoError(t, a.Subscribe(ctx, "lobby"))

	require.NoError(t, a.Publish(ctx, "lobby", Envelope{Event: "message"}))
	assert.Len(t, rec.envelopes(), 1, "fan-out includes the publishing instance")
}

func TestBroadcastTopicReachesEveryConnection(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	recA := &recorder{}
	recB := &recorder{}
	broker.Connect(recA.handler)
	b := broker.Connect(recB.handler)

	require.NoError(t, b.Publish(ctx, BroadcastTopic, Envelope{Event: "announcement"}))

	assert.Len(t, recA.envelopes(), 1)
	assert.Len(t, recB.envelopes(), 1)
}

func TestExcludeTravelsWithEnvelope(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	rec := &recorder{}
	a := broker.Connect(rec.handler)
	require.NoError(t, a.Subscribe(ctx, "lobby"))

	require.NoError(t, a.Publish(ctx, "lobby", Envelope{Event: "notification", Exclude: "conn-42"}))

	// The bus routes by topic only; exclusion is enforced by the gateway,
	// so the marker must survive transit.
	require.Len(t, rec.envelopes(), 1)
	assert.Equal(t, "conn-42", rec.envelopes()[0].Exclude)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	rec := &recorder{}
	a := broker.Connect(rec.handler)
	require.NoError(t, a.Subscribe(ctx, "lobby"))
	require.NoError(t, a.Unsubscribe(ctx, "lobby"))

	require.NoError(t, a.Publish(ctx, "lobby", Envelope{Event: "message"}))
	assert.Empty(t, rec.envelopes())
}

func TestClosedConnectionIsInert(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	rec := &recorder{}
	a := broker.Connect(rec.handler)
	require.NoError(t, a.Subscribe(ctx, "lobby"))
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Publish(ctx, "lobby", Envelope{Event: "message"}), ErrClosed)
	assert.ErrorIs(t, a.Subscribe(ctx, "lobby"), ErrClosed)

	live := broker.Connect(func(string, Envelope) {})
	require.NoError(t, live.Publish(ctx, "lobby", Envelope{Event: "message"}))
	assert.Empty(t, rec.envelopes(), "closed connection must not receive")
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := Envelope{
		Event:   "notification",
		Data:    json.RawMessage(`{"title":"Someone's here"}`),
		Exclude: "conn-1",
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, env, decoded)
}
