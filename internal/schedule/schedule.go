// Package schedule implements candidate slot generation and busy-interval
// subtraction for the booking window.
//
// Generate produces the ordered sequence of offerable slots for a window and
// FilterAvailable removes the ones that collide with calendar busy intervals.
package schedule

import (
	"log/slog"
	"time"

	"github.com/bookline/bookline/internal/models"
)

// Generate produces the candidate slots for the window relative to now:
// for each day in [0, DaysAhead), one slot per SlotDuration step inside the
// daily [DayStartHour, DayEndHour) range, keeping only slots that start
// strictly after now. Output is ascending by start time, day-major then
// hour-minor. Slots with start at or before now are dropped, not clamped.
func Generate(window models.BookingWindow, now time.Time) []models.Slot {
	local := now.In(window.Location)
	var slots []models.Slot

	for day := 0; day < window.DaysAhead; day++ {
		date := local.AddDate(0, 0, day)
		start := time.Date(date.Year(), date.Month(), date.Day(), window.DayStartHour, 0, 0, 0, window.Location)
		end := time.Date(date.Year(), date.Month(), date.Day(), window.DayEndHour, 0, 0, 0, window.Location)

		for cursor := start; cursor.Before(end); cursor = cursor.Add(window.SlotDuration) {
			if !cursor.After(local) {
				continue
			}
			slots = append(slots, models.Slot{
				TimeInterval: models.TimeInterval{Start: cursor, End: cursor.Add(window.SlotDuration)},
			})
		}
	}

	slog.Debug("schedule.Generate produced candidate slots", "count", len(slots), "days_ahead", window.DaysAhead)
	return slots
}

// FilterAvailable retains the slots that overlap no busy interval, using
// half-open semantics: a slot ending exactly when a busy interval begins
// stays offerable. Input order is preserved, and an empty busy set returns
// the input unchanged. The scan is O(slots x busy), which is fine for the
// bounded lists a booking window produces.
//
// Busy intervals must already be normalized to the window's location by the
// calendar boundary before they reach this function.
func FilterAvailable(slots []models.Slot, busy []models.TimeInterval) []models.Slot {
	if len(busy) == 0 {
		return slots
	}

	available := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		blocked := false
		for _, b := range busy {
			if slot.Overlaps(b) {
				blocked = true
				break
			}
		}
		if !blocked {
			available = append(available, slot)
		}
	}

	slog.Debug("schedule.FilterAvailable filtered slots", "candidates", len(slots), "busy", len(busy), "available", len(available))
	return available
}
