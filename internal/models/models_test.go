package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func interval(startHour, endHour int) TimeInterval {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return TimeInterval{
		Start: day.Add(time.Duration(startHour) * time.Hour),
		End:   day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestTimeIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b TimeInterval
		want bool
	}{
		{"identical", interval(10, 11), interval(10, 11), true},
		{"partial overlap", interval(10, 12), interval(11, 13), true},
		{"containment", interval(10, 14), interval(11, 12), true},
		{"disjoint", interval(10, 11), interval(12, 13), false},
		{"touching end to start", interval(10, 11), interval(11, 12), false},
		{"touching start to end", interval(11, 12), interval(10, 11), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			// Overlap is symmetric.
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeIntervalValidate(t *testing.T) {
	if err := interval(10, 11).Validate(); err != nil {
		t.Errorf("valid interval rejected: %v", err)
	}
	if err := interval(11, 11).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("empty interval accepted, err = %v", err)
	}
	if err := interval(12, 11).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("inverted interval accepted, err = %v", err)
	}
}

func TestSlotLabel(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	slot := Slot{TimeInterval{
		Start: time.Date(2025, 3, 10, 10, 0, 0, 0, loc),
		End:   time.Date(2025, 3, 10, 11, 0, 0, 0, loc),
	}}
	if got := slot.Label(); got != "2025-03-10T10:00:00" {
		t.Errorf("Label = %q", got)
	}
}

func TestBookingWindowValidate(t *testing.T) {
	if err := DefaultBookingWindow().Validate(); err != nil {
		t.Fatalf("default window rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*BookingWindow)
	}{
		{"zero days ahead", func(w *BookingWindow) { w.DaysAhead = 0 }},
		{"days ahead too large", func(w *BookingWindow) { w.DaysAhead = MaxDaysAhead + 1 }},
		{"inverted daily window", func(w *BookingWindow) { w.DayStartHour, w.DayEndHour = 15, 10 }},
		{"end hour past midnight", func(w *BookingWindow) { w.DayEndHour = 25 }},
		{"zero slot duration", func(w *BookingWindow) { w.SlotDuration = 0 }},
		{"missing location", func(w *BookingWindow) { w.Location = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultBookingWindow()
			tt.mutate(&w)
			if err := w.Validate(); !errors.Is(err, ErrInvalidBookingWindow) {
				t.Errorf("expected ErrInvalidBookingWindow, got %v", err)
			}
		})
	}
}

func TestChatRequestValidate(t *testing.T) {
	req := ChatRequest{Message: "hello"}
	if err := req.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	req = ChatRequest{}
	if err := req.Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	req = ChatRequest{Message: strings.Repeat("a", MaxMessageLength+1)}
	if err := req.Validate(); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestPendingBookingRoundTrip(t *testing.T) {
	pb := PendingBooking{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		OfferedSlots: []Slot{
			{interval(10, 11)},
			{interval(11, 12)},
		},
	}
	raw, err := pb.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var got PendingBooking
	if err := got.FromJSON(raw); err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if got.Name != pb.Name || got.Email != pb.Email || len(got.OfferedSlots) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if !got.OfferedSlots[0].Start.Equal(pb.OfferedSlots[0].Start) {
		t.Errorf("slot start changed: %v", got.OfferedSlots[0].Start)
	}

	if err := got.FromJSON("{not json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestTranscriptAccumulation(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	var tr Transcript
	tr.Append(SpeakerUser, "I want to book", at)
	tr.Append(SpeakerBot, "what is your name?", at.Add(time.Second))
	tr.Append(SpeakerUser, "Ada", at.Add(2*time.Second))

	userTurns := tr.UserTurns()
	if len(userTurns) != 2 {
		t.Fatalf("expected 2 user turns, got %d", len(userTurns))
	}
	if userTurns[1].Text != "Ada" {
		t.Errorf("user turns out of order: %+v", userTurns)
	}

	rendered := tr.Render()
	if !strings.Contains(rendered, "User: I want to book") || !strings.Contains(rendered, "Bot: what is your name?") {
		t.Errorf("render missing turns: %q", rendered)
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	ok := Success(map[string]string{"k": "v"})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("Success built %+v", ok)
	}
	fail := Error("it broke")
	if fail.Status != string(APIStatusError) || fail.Message != "it broke" {
		t.Errorf("Error built %+v", fail)
	}
}
