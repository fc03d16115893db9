// Package server implements the connection gateway and room fan-out protocol
// of the chat relay.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the wire protocol, routing, and HTTP handlers to
// keep the codebase maintainable and testable as the project grows.
package server
