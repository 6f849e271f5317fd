package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/twiliochat"
)

// TwilioService implements the Service interface using the Twilio REST API.
// Inbound messages arrive through the webhook handler rather than a
// persistent connection.
type TwilioService struct {
	client    twiliochat.Sender
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService wrapping the given Sender.
func NewTwilioService(client twiliochat.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// Start is a no-op; Twilio delivers inbound messages via webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
	}()

	return nil
}

// SendMessage sends a message via the Twilio REST API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Responses returns the channel of inbound user messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler handles inbound Twilio webhook requests. It parses
// incoming messages and emits them into the Responses() channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("TwilioService webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")

	if from == "" || body == "" {
		slog.Warn("TwilioService webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("TwilioService inbound message", "from", from, "body_length", len(body))

	s.safeEmitResponse(models.Response{
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// safeEmitResponse pushes a response into the responses channel unless the
// service is stopped or the channel is blocked.
func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", response.From)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From)
	}
}
