package calendar

import (
	"context"
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/bookline/bookline/internal/models"
)

func TestEventToIntervalTimedEvent(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	item := &gcal.Event{
		Start: &gcal.EventDateTime{DateTime: "2025-03-10T10:30:00Z"},
		End:   &gcal.EventDateTime{DateTime: "2025-03-10T10:45:00Z"},
	}

	interval, ok := eventToInterval(item, loc)
	if !ok {
		t.Fatal("expected timed event to convert")
	}
	if interval.Start.Location() != loc || interval.End.Location() != loc {
		t.Errorf("interval not normalized to booking zone: %v", interval.Start.Location())
	}
	// 10:30 UTC is 15:30 in UTC+5
	if interval.Start.Hour() != 15 || interval.Start.Minute() != 30 {
		t.Errorf("unexpected normalized start: %v", interval.Start)
	}
}

func TestEventToIntervalAllDayEvent(t *testing.T) {
	item := &gcal.Event{
		Start: &gcal.EventDateTime{Date: "2025-03-10"},
		End:   &gcal.EventDateTime{Date: "2025-03-11"},
	}

	interval, ok := eventToInterval(item, time.UTC)
	if !ok {
		t.Fatal("expected all-day event to convert")
	}
	if interval.Start.Hour() != 0 || !interval.End.Equal(interval.Start.AddDate(0, 0, 1)) {
		t.Errorf("all-day event should block the whole day, got %v - %v", interval.Start, interval.End)
	}
}

func TestEventToIntervalSkipsUnusableEvents(t *testing.T) {
	cases := []*gcal.Event{
		nil,
		{},
		{Start: &gcal.EventDateTime{DateTime: "garbage"}, End: &gcal.EventDateTime{DateTime: "2025-03-10T10:00:00Z"}},
		{Start: &gcal.EventDateTime{DateTime: "2025-03-10T11:00:00Z"}, End: &gcal.EventDateTime{DateTime: "2025-03-10T10:00:00Z"}},
	}
	for i, item := range cases {
		if _, ok := eventToInterval(item, time.UTC); ok {
			t.Errorf("case %d: expected event to be skipped", i)
		}
	}
}

func TestMockServiceRecordsEvents(t *testing.T) {
	mock := NewMockService()
	slot := models.Slot{TimeInterval: models.TimeInterval{
		Start: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	}}

	if err := mock.CreateEvent(context.Background(), "Alice", "alice@example.com", slot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created := mock.CreatedEvents()
	if len(created) != 1 || created[0].Email != "alice@example.com" {
		t.Errorf("expected one recorded event for alice, got %+v", created)
	}
}
