package models

import (
	"fmt"
	"time"
)

// SlotLabelLayout renders a slot start in ISO 8601 local time, matching the
// "Slot N: 2006-01-02T15:04:05" presentation the bot offers to users.
const SlotLabelLayout = "2006-01-02T15:04:05"

// TimeInterval is a half-open time range [Start, End).
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate ensures the interval is well formed (Start strictly before End).
func (i TimeInterval) Validate() error {
	if !i.Start.Before(i.End) {
		return ErrInvalidInterval
	}
	return nil
}

// Overlaps reports whether two half-open intervals overlap. Touching
// endpoints (one interval ending exactly where the other starts) do not
// count as overlap.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// In returns the interval with both endpoints converted to loc. Interval
// comparisons are only meaningful once both sides share one location, so
// callers normalize at the boundary where external intervals enter.
func (i TimeInterval) In(loc *time.Location) TimeInterval {
	return TimeInterval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

// Slot is a fixed-duration bookable candidate interval, generated from a
// BookingWindow independently of any busy intervals.
type Slot struct {
	TimeInterval
}

// Label renders the slot start as ISO 8601 local time for user-facing lists.
func (s Slot) Label() string {
	return s.Start.Format(SlotLabelLayout)
}

// Validation limits for booking window configuration.
const (
	// MinDaysAhead is the smallest permitted booking lookahead.
	MinDaysAhead = 1
	// MaxDaysAhead bounds the lookahead so offered lists stay short.
	MaxDaysAhead = 31
)

// BookingWindow holds the configuration every slot derives from: how many
// days ahead to offer, the daily window, the slot length and the single
// resolved timezone the negotiation happens in.
type BookingWindow struct {
	DaysAhead    int
	DayStartHour int
	DayEndHour   int
	SlotDuration time.Duration
	Location     *time.Location
}

// DefaultBookingWindow returns the stock configuration: hour-long slots
// between 10:00 and 15:00 for the next three days, in a fixed UTC+5 zone.
func DefaultBookingWindow() BookingWindow {
	return BookingWindow{
		DaysAhead:    3,
		DayStartHour: 10,
		DayEndHour:   15,
		SlotDuration: time.Hour,
		Location:     time.FixedZone("UTC+5", 5*60*60),
	}
}

// Validate performs comprehensive validation on a BookingWindow.
func (w BookingWindow) Validate() error {
	if w.DaysAhead < MinDaysAhead || w.DaysAhead > MaxDaysAhead {
		return fmt.Errorf("%w: days ahead %d outside [%d, %d]", ErrInvalidBookingWindow, w.DaysAhead, MinDaysAhead, MaxDaysAhead)
	}
	if w.DayStartHour < 0 || w.DayEndHour > 24 || w.DayStartHour >= w.DayEndHour {
		return fmt.Errorf("%w: daily window [%d, %d) is not a valid hour range", ErrInvalidBookingWindow, w.DayStartHour, w.DayEndHour)
	}
	if w.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidBookingWindow)
	}
	if w.Location == nil {
		return fmt.Errorf("%w: location is required", ErrInvalidBookingWindow)
	}
	return nil
}
