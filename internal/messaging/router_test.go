package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
)

type sentMessage struct {
	To   string
	Body string
}

// fakeService is an in-memory Service for router tests.
type fakeService struct {
	responses chan models.Response
	sent      chan sentMessage
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(chan models.Response, 10),
		sent:      make(chan sentMessage, 10),
	}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

func (f *fakeService) SendMessage(ctx context.Context, to, body string) error {
	f.sent <- sentMessage{To: to, Body: body}
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error                     { return nil }

func (f *fakeService) Responses() <-chan models.Response { return f.responses }

// echoFlow replies with a fixed answer and records the session it saw.
type echoFlow struct {
	reply    string
	err      error
	sessions chan string
}

func (e *echoFlow) ProcessMessage(ctx context.Context, sessionID, text string) (string, error) {
	if e.sessions != nil {
		e.sessions <- sessionID
	}
	return e.reply, e.err
}

func TestRouterRepliesOverSameChannel(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	defer st.Close()
	cf := &echoFlow{reply: "Sure, I'd be happy to help.", sessions: make(chan string, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := NewRouter(svc, cf, st, "whatsapp")
	if err := router.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.responses <- models.Response{From: "+1 (555) 010-0199", Body: "book an appointment", Time: time.Now().Unix()}

	select {
	case sessionID := <-cf.sessions:
		// Session identity is the canonical phone number.
		if sessionID != "15550100199" {
			t.Errorf("expected canonical session ID, got %q", sessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flow never received the message")
	}

	select {
	case msg := <-svc.sent:
		if msg.To != "+1 (555) 010-0199" {
			t.Errorf("reply went to %q, expected original sender", msg.To)
		}
		if msg.Body != "Sure, I'd be happy to help." {
			t.Errorf("unexpected reply body %q", msg.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reply was never sent")
	}

	session, err := st.GetSession("15550100199")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("expected session recorded for sender")
	}
	if session.Channel != "whatsapp" {
		t.Errorf("expected channel whatsapp, got %q", session.Channel)
	}
}

func TestRouterSurvivesFlowErrors(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	defer st.Close()
	cf := &echoFlow{err: errors.New("state store unavailable"), sessions: make(chan string, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := NewRouter(svc, cf, st, "twilio")
	if err := router.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.responses <- models.Response{From: "+15550100199", Body: "hello"}
	svc.responses <- models.Response{From: "+15550100199", Body: "hello again"}

	// Both turns reach the flow even though the first errored.
	for i := 0; i < 2; i++ {
		select {
		case <-cf.sessions:
		case <-time.After(2 * time.Second):
			t.Fatalf("turn %d never reached the flow", i+1)
		}
	}

	select {
	case msg := <-svc.sent:
		t.Errorf("no reply expected after flow error, got %q", msg.Body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRouterDropsInvalidSenders(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	defer st.Close()
	cf := &echoFlow{reply: "hi", sessions: make(chan string, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := NewRouter(svc, cf, st, "whatsapp")
	if err := router.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.responses <- models.Response{From: "not-a-number", Body: "hello"}

	select {
	case sessionID := <-cf.sessions:
		t.Errorf("message from invalid sender should be dropped, flow saw %q", sessionID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCanonicalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 010-0199", "15550100199", false},
		{"15550100199", "15550100199", false},
		{"whatsapp:+15550100199", "15550100199", false},
		{"", "", true},
		{"abc", "", true},
		{"123", "", true},
	}
	for _, tt := range tests {
		got, err := canonicalizePhoneNumber(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhoneNumber(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhoneNumber(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("canonicalizePhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
