// Package models defines flow type definitions to avoid circular imports.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlowType represents a specific type of conversation flow
type FlowType string

// StateType represents a specific state within a flow
type StateType string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeBooking FlowType = "booking"
)

// State constants for the booking flow. A session with no stored state is in
// StateAwaitingIntent implicitly; completing or cancelling a booking deletes
// the flow state, returning the session to that implicit initial state.
const (
	StateAwaitingIntent        StateType = "AWAITING_INTENT"
	StateAwaitingName          StateType = "AWAITING_NAME"
	StateAwaitingEmail         StateType = "AWAITING_EMAIL"
	StateAwaitingSlotSelection StateType = "AWAITING_SLOT_SELECTION"
)

// Data key constants for the booking flow.
const (
	DataKeyPendingBooking DataKey = "pendingBooking" // PendingBooking JSON accumulator
	DataKeyTranscript     DataKey = "transcript"     // Transcript JSON for fallback re-derivation
)

// PendingBooking accumulates the details collected over one conversation.
// It is cleared in full when the session completes or cancels. OfferedSlots
// is only non-empty while the session awaits a slot selection, and a numeric
// selection is only ever validated against the most recently offered list.
type PendingBooking struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	OfferedSlots []Slot `json:"offered_slots,omitempty"`
}

// ToJSON serializes the pending booking to a JSON string.
func (pb *PendingBooking) ToJSON() (string, error) {
	data, err := json.Marshal(pb)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending booking: %w", err)
	}
	return string(data), nil
}

// FromJSON deserializes a pending booking from a JSON string.
func (pb *PendingBooking) FromJSON(jsonStr string) error {
	if err := json.Unmarshal([]byte(jsonStr), pb); err != nil {
		return fmt.Errorf("failed to unmarshal pending booking: %w", err)
	}
	return nil
}

// Transcript is the append-only ordered record of one session's turns. It is
// owned exclusively by the active session and discarded on completion.
type Transcript struct {
	Turns []Turn `json:"turns"`
}

// Append adds a turn to the transcript.
func (t *Transcript) Append(speaker Speaker, text string, at time.Time) {
	t.Turns = append(t.Turns, Turn{Speaker: speaker, Text: text, Time: at})
}

// UserTurns returns the user-authored turns in order.
func (t *Transcript) UserTurns() []Turn {
	var turns []Turn
	for _, turn := range t.Turns {
		if turn.Speaker == SpeakerUser {
			turns = append(turns, turn)
		}
	}
	return turns
}

// Render flattens the transcript into a "User: ..." / "Bot: ..." text block
// for language-model extraction over the whole conversation.
func (t *Transcript) Render() string {
	var out string
	for _, turn := range t.Turns {
		role := "Bot"
		if turn.Speaker == SpeakerUser {
			role = "User"
		}
		out += fmt.Sprintf("%s: %s\n", role, turn.Text)
	}
	return out
}

// ToJSON serializes the transcript to a JSON string.
func (t *Transcript) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return string(data), nil
}

// FromJSON deserializes a transcript from a JSON string.
func (t *Transcript) FromJSON(jsonStr string) error {
	if err := json.Unmarshal([]byte(jsonStr), t); err != nil {
		return fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return nil
}
