// Package server wires HTTP handlers into a ServeMux for the chat relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

// SetupRoutes configures and returns an HTTP ServeMux with all relay routes:
// health check, WebSocket endpoint, and the administrative broadcast.
func SetupRoutes(hub *Hub, cfg *Config, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, cfg, log))
	mux.HandleFunc("/toEmit", NewEmitHandler(hub, log))
	return mux
}
