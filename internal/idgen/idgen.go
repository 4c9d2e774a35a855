// Package idgen generates request identifiers.
package idgen

import (
	"github.com/google/uuid"
)

// MaxExternalIDLength bounds IDs accepted from callers.
const MaxExternalIDLength = 64

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// RequestID returns id if it is safe to echo into headers and logs,
// otherwise a fresh ID. Safe means 1..64 chars of [A-Za-z0-9._-].
func RequestID(id string) string {
	if isSafe(id) {
		return id
	}
	return New()
}

func isSafe(id string) bool {
	if id == "" || len(id) > MaxExternalIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
