package schedule

import (
	"testing"
	"time"

	"github.com/bookline/bookline/internal/models"
)

func testWindow(daysAhead, startHour, endHour int) models.BookingWindow {
	return models.BookingWindow{
		DaysAhead:    daysAhead,
		DayStartHour: startHour,
		DayEndHour:   endHour,
		SlotDuration: time.Hour,
		Location:     time.UTC,
	}
}

func TestGenerateSingleDayWindow(t *testing.T) {
	// daysAhead=1, window 10:00-12:00, now 09:00 -> exactly 10:00-11:00 and 11:00-12:00
	window := testWindow(1, 10, 12)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	slots := Generate(window, now)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Start.Hour() != 10 || slots[0].End.Hour() != 11 {
		t.Errorf("first slot wrong: %v - %v", slots[0].Start, slots[0].End)
	}
	if slots[1].Start.Hour() != 11 || slots[1].End.Hour() != 12 {
		t.Errorf("second slot wrong: %v - %v", slots[1].Start, slots[1].End)
	}
}

func TestGenerateExcludesPastSlots(t *testing.T) {
	// now is inside the daily window; slots with start <= now must be dropped
	window := testWindow(1, 10, 15)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	slots := Generate(window, now)
	for _, slot := range slots {
		if !slot.Start.After(now) {
			t.Errorf("slot %v does not start strictly after now %v", slot.Start, now)
		}
	}
	// 13:00 and 14:00 remain; the 12:00 slot starts exactly at now and is dropped
	if len(slots) != 2 {
		t.Errorf("expected 2 future slots, got %d", len(slots))
	}
}

func TestGenerateOrderingAscending(t *testing.T) {
	window := testWindow(3, 10, 15)
	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	slots := Generate(window, now)
	if len(slots) == 0 {
		t.Fatal("expected slots, got none")
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Start.Before(slots[i].Start) {
			t.Errorf("slots not strictly ascending at index %d: %v then %v", i, slots[i-1].Start, slots[i].Start)
		}
	}
}

func TestGenerateUsesWindowLocation(t *testing.T) {
	window := testWindow(1, 10, 12)
	window.Location = time.FixedZone("UTC+5", 5*60*60)
	// 04:00 UTC is 09:00 in UTC+5, so both daily slots are still ahead
	now := time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)

	slots := Generate(window, now)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Start.Location() != window.Location {
		t.Errorf("expected slots in window location, got %v", slots[0].Start.Location())
	}
}

func TestFilterAvailableIdentityOnEmptyBusy(t *testing.T) {
	window := testWindow(2, 10, 15)
	slots := Generate(window, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))

	filtered := FilterAvailable(slots, nil)
	if len(filtered) != len(slots) {
		t.Fatalf("identity law violated: %d in, %d out", len(slots), len(filtered))
	}
	for i := range slots {
		if !filtered[i].Start.Equal(slots[i].Start) {
			t.Errorf("order changed at index %d", i)
		}
	}
}

func TestFilterAvailableExcludesOverlappingSlot(t *testing.T) {
	// window 10:00-12:00, busy 10:30-10:45 -> 10:00 slot excluded, 11:00 retained
	window := testWindow(1, 10, 12)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := Generate(window, day.Add(9*time.Hour))

	busy := []models.TimeInterval{
		{Start: day.Add(10*time.Hour + 30*time.Minute), End: day.Add(10*time.Hour + 45*time.Minute)},
	}
	filtered := FilterAvailable(slots, busy)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 slot after filtering, got %d", len(filtered))
	}
	if filtered[0].Start.Hour() != 11 {
		t.Errorf("expected the 11:00 slot to survive, got %v", filtered[0].Start)
	}
}

func TestFilterAvailableTouchingIsNotOverlapping(t *testing.T) {
	window := testWindow(1, 10, 12)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := Generate(window, day.Add(9*time.Hour))

	// One busy interval ends exactly where the 10:00 slot starts and another
	// begins exactly where the 12:00 end lands; neither may exclude anything.
	busy := []models.TimeInterval{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		{Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)},
	}
	filtered := FilterAvailable(slots, busy)
	if len(filtered) != len(slots) {
		t.Errorf("touching intervals excluded slots: %d in, %d out", len(slots), len(filtered))
	}
}

func TestFilterAvailableBusyCoversWholeDay(t *testing.T) {
	window := testWindow(1, 10, 12)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := Generate(window, day.Add(9*time.Hour))

	busy := []models.TimeInterval{
		{Start: day.Add(9 * time.Hour), End: day.Add(18 * time.Hour)},
	}
	filtered := FilterAvailable(slots, busy)
	if len(filtered) != 0 {
		t.Errorf("expected no slots, got %d", len(filtered))
	}
}
