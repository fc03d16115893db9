// Package server defines protocol error values and close-error helpers shared
// across client and hub logic.
package server

import (
	"errors"
	"strings"
)

// ErrSessionNotFound is acked to a sendMessage from a connection that never
// signed in. The text is part of the wire contract, capitalization included.
var ErrSessionNotFound = errors.New("User session not found.")

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
