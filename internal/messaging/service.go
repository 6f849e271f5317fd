// Package messaging provides pluggable chat channel integrations for Bookline.
//
// A Service delivers outbound bot replies and surfaces inbound user messages;
// the Router connects a Service to the booking conversation.
package messaging

import (
	"context"
	"errors"
	"regexp"

	"github.com/bookline/bookline/internal/models"
)

// ErrServiceStopped is returned when a send is attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit from a recipient.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and provides a channel of inbound user messages.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// canonicalizePhoneNumber reduces a recipient to bare digits and validates
// the result. Shared by the WhatsApp and Twilio services.
func canonicalizePhoneNumber(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", errors.New("invalid phone number: no digits found")
	}
	if len(canonical) < 6 {
		return "", errors.New("invalid phone number: too short")
	}
	return canonical, nil
}
