// Package calendar provides the calendar provider boundary for Bookline.
//
// The booking flow depends only on the Service contract: enumerate busy
// intervals over a window and insert a confirmed event. The production
// implementation talks to Google Calendar; MockService backs tests and
// credential-less development runs.
package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bookline/bookline/internal/models"
)

// ErrUnavailable reports that the calendar provider could not be reached.
// Callers degrade (empty availability, booking-failed reply) rather than
// surface this to the user as a crash.
var ErrUnavailable = errors.New("calendar provider unavailable")

// Service defines the calendar operations the booking engine depends on.
type Service interface {
	// ListBusyIntervals returns the intervals already occupied on the
	// calendar between from and to, normalized to the booking timezone.
	ListBusyIntervals(ctx context.Context, from, to time.Time) ([]models.TimeInterval, error)

	// CreateEvent inserts a confirmed appointment, notifying the attendee
	// by email and scheduling reminders.
	CreateEvent(ctx context.Context, name, email string, slot models.Slot) error
}

// BookedEvent records a CreateEvent call made against a MockService.
type BookedEvent struct {
	Name  string
	Email string
	Slot  models.Slot
}

// MockService implements Service in memory for tests and development runs
// without Google credentials.
type MockService struct {
	mu sync.Mutex

	// Busy is returned from ListBusyIntervals when ListErr is nil.
	Busy []models.TimeInterval
	// ListErr forces ListBusyIntervals to fail.
	ListErr error
	// CreateErr forces CreateEvent to fail.
	CreateErr error

	created []BookedEvent
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{}
}

// ListBusyIntervals returns the configured busy intervals.
func (m *MockService) ListBusyIntervals(ctx context.Context, from, to time.Time) ([]models.TimeInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]models.TimeInterval(nil), m.Busy...), nil
}

// CreateEvent records the event, or fails when CreateErr is set.
func (m *MockService) CreateEvent(ctx context.Context, name, email string, slot models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.created = append(m.created, BookedEvent{Name: name, Email: email, Slot: slot})
	return nil
}

// CreatedEvents returns the events recorded so far.
func (m *MockService) CreatedEvents() []BookedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BookedEvent(nil), m.created...)
}

// UnavailableService implements Service for deployments with no calendar
// configured. Every call fails with ErrUnavailable, which the booking flow
// turns into an empty offer or a booking-failed reply, keeping the rest of
// the service alive.
type UnavailableService struct{}

// NewUnavailableService creates an UnavailableService.
func NewUnavailableService() *UnavailableService {
	return &UnavailableService{}
}

func (u *UnavailableService) ListBusyIntervals(ctx context.Context, from, to time.Time) ([]models.TimeInterval, error) {
	return nil, ErrUnavailable
}

func (u *UnavailableService) CreateEvent(ctx context.Context, name, email string, slot models.Slot) error {
	return ErrUnavailable
}
