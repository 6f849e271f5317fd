// Package models defines the core data structures for Bookline.
//
// It includes the time-interval and slot types used by the availability
// algorithm, the conversation/session types used by the booking flow, and the
// request/response envelopes shared across transports.
package models

import (
	"errors"
	"time"
)

// Validation constants for inbound chat turns.
const (
	// MaxMessageLength defines the maximum allowed length for a single user message
	MaxMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrEmptySessionID       = errors.New("session id cannot be empty")
	ErrInvalidBookingWindow = errors.New("invalid booking window configuration")
	ErrInvalidInterval      = errors.New("interval start must be before end")
)

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	// SpeakerUser marks a turn written by the person booking.
	SpeakerUser Speaker = "user"
	// SpeakerBot marks a turn written by the booking assistant.
	SpeakerBot Speaker = "bot"
)

// Turn is a single utterance in a conversation transcript.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Session represents one isolated conversation between one user and the
// booking engine. UpdatedAt doubles as the last-activity timestamp used by
// the idle sweep.
type Session struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"` // "http", "whatsapp" or "twilio"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowState represents the current state of a session in a flow.
type FlowState struct {
	SessionID    string             `json:"session_id"`
	FlowType     FlowType           `json:"flow_type"`
	CurrentState StateType          `json:"current_state"`
	StateData    map[DataKey]string `json:"state_data,omitempty"` // Additional state-specific data
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// BookingRecord is a confirmed appointment persisted for the ops surface.
type BookingRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	CreatedAt time.Time `json:"created_at"`
}

// Response represents an incoming message from a chat channel participant.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// ChatRequest is the inbound payload of a single conversation turn.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Validate checks a chat request before it reaches the booking flow.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the outbound payload of a single conversation turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse provides a standardized response structure for management endpoints.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build returns the constructed APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
