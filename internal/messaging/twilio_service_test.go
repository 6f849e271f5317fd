package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bookline/bookline/internal/twiliochat"
)

func TestTwilioServiceWebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+15550100199")
	form.Set("Body", "I'd like to book an appointment")

	req := httptest.NewRequest(http.MethodPost, "/twilio/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "whatsapp:+15550100199" {
			t.Errorf("unexpected sender %q", resp.From)
		}
		if resp.Body != "I'd like to book an appointment" {
			t.Errorf("unexpected body %q", resp.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook did not emit response")
	}
}

func TestTwilioServiceWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+15550100199")

	req := httptest.NewRequest(http.MethodPost, "/twilio/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTwilioServiceSendCanonicalizes(t *testing.T) {
	mock := twiliochat.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+1 (555) 010-0199", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "15550100199" {
		t.Errorf("expected canonical recipient, got %q", mock.SentMessages[0].To)
	}
}

func TestTwilioServiceStoppedRejectsSend(t *testing.T) {
	svc := NewTwilioService(twiliochat.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "+15550100199", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
