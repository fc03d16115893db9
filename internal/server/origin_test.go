package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"example.com", "", false},
		{"", "", false},
		{"://bad", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestOriginCheckerAllowList(t *testing.T) {
	oc := newOriginChecker([]string{"http://allowed.example"}, zerolog.Nop())

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "http://allowed.example")
	assert.True(t, oc.check(allowed))

	blocked := httptest.NewRequest("GET", "/ws", nil)
	blocked.Header.Set("Origin", "http://evil.example")
	assert.False(t, oc.check(blocked))

	missing := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, oc.check(missing), "requests without an Origin header are rejected")
}

func TestOriginCheckerWildcard(t *testing.T) {
	oc := newOriginChecker([]string{"*"}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://anything.example")
	assert.True(t, oc.check(req))

	// Wildcard still requires a parseable Origin header.
	missing := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, oc.check(missing))
}
