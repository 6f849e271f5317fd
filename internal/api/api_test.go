package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bookline/bookline/internal/calendar"
	"github.com/bookline/bookline/internal/flow"
	"github.com/bookline/bookline/internal/genai"
	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
)

// stubNLU answers intent by keyword and echoes extractions.
type stubNLU struct{}

func (stubNLU) ClassifyIntent(ctx context.Context, text string) (genai.Intent, error) {
	if strings.Contains(strings.ToLower(text), "book") {
		return genai.IntentBookRequest, nil
	}
	return genai.IntentOther, nil
}

func (stubNLU) ExtractName(ctx context.Context, text string) (string, error) {
	return text, nil
}

func (stubNLU) ExtractEmail(ctx context.Context, text string) (string, error) {
	return text, nil
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })

	window := models.BookingWindow{
		DaysAhead:    1,
		DayStartHour: 10,
		DayEndHour:   12,
		SlotDuration: time.Hour,
		Location:     time.UTC,
	}
	clock := func() time.Time {
		return time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	}
	bf := flow.NewBookingFlow(
		flow.NewStoreBasedStateManager(st),
		stubNLU{},
		&calendar.MockService{},
		st,
		flow.WithBookingWindow(window),
		flow.WithClock(clock),
	)
	return NewServer(st, bf), st
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestChatHandlerIssuesSession(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"I want to book an appointment"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeAPIResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	sessionID, _ := result["session_id"].(string)
	if sessionID == "" {
		t.Error("expected issued session_id in response")
	}
	answer, _ := result["answer"].(string)
	if !strings.Contains(answer, "provide your name") {
		t.Errorf("unexpected answer %q", answer)
	}
}

func TestChatHandlerContinuesSession(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	post := func(body string) models.APIResponse {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		return decodeAPIResponse(t, rec)
	}

	first := post(`{"message":"book an appointment"}`)
	sessionID := first.Result.(map[string]interface{})["session_id"].(string)

	second := post(`{"session_id":"` + sessionID + `","message":"Ada Lovelace"}`)
	answer := second.Result.(map[string]interface{})["answer"].(string)
	if !strings.Contains(answer, "Ada Lovelace") {
		t.Errorf("expected continuation of conversation, got %q", answer)
	}
}

func TestChatHandlerRejectsInvalidRequests(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed JSON", `{"message":`, http.StatusBadRequest},
		{"empty message", `{"message":""}`, http.StatusBadRequest},
		{"oversized message", `{"message":"` + strings.Repeat("a", models.MaxMessageLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestChatHandlerMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestBookingsHandlerReturnsRecords(t *testing.T) {
	server, st := newTestServer(t)
	handler := server.Handler()

	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	if err := st.AddBooking(models.BookingRecord{
		ID:        "b-1",
		SessionID: "sess-1",
		Name:      "Ada",
		Email:     "ada@example.com",
		SlotStart: base,
		SlotEnd:   base.Add(time.Hour),
		CreatedAt: base,
	}); err != nil {
		t.Fatalf("AddBooking failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeAPIResponse(t, rec)
	records, ok := resp.Result.([]interface{})
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 booking, got %d", len(records))
	}
}

func TestSlotsHandlerReturnsAvailability(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeAPIResponse(t, rec)
	slots, ok := resp.Result.([]interface{})
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	first := slots[0].(map[string]interface{})
	if first["label"] != "2026-03-09T10:00:00" {
		t.Errorf("unexpected first slot label %v", first["label"])
	}
}

func TestHealthHandler(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}
}
