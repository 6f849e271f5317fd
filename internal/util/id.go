// Package util provides small helpers shared across Bookline components.
package util

import (
	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session ID for HTTP chat clients.
// Messaging channels use the sender's canonical phone number instead.
func GenerateSessionID() string {
	return uuid.New().String()
}
