// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, the
// health check, and the administrative broadcast endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/bus"
)

// NewWebSocketHandler returns the handler for GET /ws. It upgrades the
// connection, creates a Client, and registers it with the hub, which starts
// the read/write pumps.
func NewWebSocketHandler(hub *Hub, cfg *Config, log zerolog.Logger) http.HandlerFunc {
	checker := newOriginChecker(cfg.AllowedOrigins, log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checker.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		hub.Register(NewClient(conn, hub, r.RemoteAddr, cfg))
	}
}

// emitRequest is the administrative broadcast body: a named event with an
// arbitrary payload, optionally targeted at an explicit list of topics.
type emitRequest struct {
	To    []string `json:"to"`
	Event struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	} `json:"event"`
}

// NewEmitHandler returns the handler for POST /toEmit, the sole write path
// exposed to the HTTP layer. With targets the event goes to exactly those
// topics; without, to every connected client on every instance. The payload
// is not validated beyond the presence of an event name.
func NewEmitHandler(hub *Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req emitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Event.Name == "" {
			http.Error(w, "event.name is required", http.StatusBadRequest)
			return
		}

		topics := req.To
		if len(topics) == 0 {
			topics = []string{bus.BroadcastTopic}
		}

		for _, topic := range topics {
			if err := hub.Publish(r.Context(), topic, req.Event.Name, req.Event.Data, ""); err != nil {
				log.Error().Err(err).Str("topic", topic).Str("event", req.Event.Name).Msg("admin broadcast failed")
				http.Error(w, "publish failed", http.StatusBadGateway)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		// Fixed acknowledgment body that clients already match on.
		_, _ = fmt.Fprint(w, `{"msg":"Enviado con exito"}`)
	}
}

// HealthHandler provides a simple health check endpoint that returns relay status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Chat relay is running!")
}
