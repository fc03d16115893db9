package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is the production bus, backed by Redis pub/sub. Publishing uses the
// request/response client shared with the cache layer; the subscription runs
// a long-lived receive loop on its own dedicated connection, so the two roles
// never block each other.
type Redis struct {
	pub     *redis.Client
	sub     *redis.PubSub
	handler Handler
	log     zerolog.Logger
	done    chan struct{}
}

// NewRedis builds a Redis bus. pub is the shared request/response client;
// subConn must be a separate client reserved for the blocking subscription.
// The receive loop starts immediately and runs until Close.
func NewRedis(ctx context.Context, pub, subConn *redis.Client, handler Handler, log zerolog.Logger) (*Redis, error) {
	sub := subConn.Subscribe(ctx, BroadcastTopic)
	// Force the subscriber connection open now so a misconfigured Redis
	// address fails at startup instead of on the first room join.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("open subscriber connection: %w", err)
	}

	r := &Redis{
		pub:     pub,
		sub:     sub,
		handler: handler,
		log:     log.With().Str("component", "bus").Logger(),
		done:    make(chan struct{}),
	}
	go r.receive()
	return r, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topics ...string) error {
	return r.sub.Subscribe(ctx, topics...)
}

func (r *Redis) Unsubscribe(ctx context.Context, topics ...string) error {
	return r.sub.Unsubscribe(ctx, topics...)
}

// Close stops the receive loop and releases the subscriber connection.
func (r *Redis) Close() error {
	err := r.sub.Close()
	<-r.done
	return err
}

// receive pumps envelopes from the subscriber connection to the handler.
// go-redis reconnects the underlying connection on failure; while Redis is
// unreachable this instance degrades to local-only delivery.
func (r *Redis) receive() {
	defer close(r.done)

	for msg := range r.sub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.log.Warn().Err(err).Str("topic", msg.Channel).Msg("dropping malformed envelope")
			continue
		}
		r.handler(msg.Channel, env)
	}
	r.log.Debug().Msg("subscriber loop stopped")
}
