// Package store provides storage backends for Bookline.
//
// A Store owns the per-session state of the booking engine: session records,
// flow state (conversation position plus accumulated data), and confirmed
// bookings. Backends: in-memory (tests, ephemeral runs), SQLite and
// PostgreSQL, selected by DSN.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bookline/bookline/internal/models"
)

// Store defines the persistence operations the booking engine depends on.
type Store interface {
	// SaveFlowState stores or updates flow state for a session.
	SaveFlowState(state models.FlowState) error
	// GetFlowState retrieves flow state for a session, nil when absent.
	GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error)
	// DeleteFlowState removes flow state for a session.
	DeleteFlowState(sessionID string, flowType models.FlowType) error

	// SaveSession creates or updates a session record.
	SaveSession(session models.Session) error
	// GetSession retrieves a session by ID, nil when absent.
	GetSession(id string) (*models.Session, error)
	// DeleteSession removes a session and its flow state.
	DeleteSession(id string) error
	// DeleteIdleSessions removes sessions (and their flow state) whose last
	// activity predates the cutoff, returning how many were swept.
	DeleteIdleSessions(cutoff time.Time) (int, error)

	// AddBooking persists a confirmed booking.
	AddBooking(booking models.BookingRecord) error
	// GetBookings lists confirmed bookings, newest first.
	GetBookings() ([]models.BookingRecord, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	DSN    string
	Driver string // "sqlite3" or "postgres"; empty means in-memory
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite store at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN configures a PostgreSQL store at the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// NewStore builds the backend the options select, defaulting to in-memory
// when no DSN is configured.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite3":
		return NewSQLiteStore(opts...)
	default:
		slog.Debug("No database DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}

// sessionKey identifies one flow-state row.
type sessionKey struct {
	sessionID string
	flowType  models.FlowType
}

// InMemoryStore is a mutex-guarded in-memory Store for tests and ephemeral runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	flowStates map[sessionKey]models.FlowState
	sessions   map[string]models.Session
	bookings   []models.BookingRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates: make(map[sessionKey]models.FlowState),
		sessions:   make(map[string]models.Session),
	}
}

// SaveFlowState stores or updates flow state for a session.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowStates[sessionKey{state.SessionID, state.FlowType}] = cloneFlowState(state)
	return nil
}

// GetFlowState retrieves flow state for a session.
func (s *InMemoryStore) GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flowStates[sessionKey{sessionID, flowType}]
	if !ok {
		return nil, nil
	}
	cloned := cloneFlowState(state)
	return &cloned, nil
}

// DeleteFlowState removes flow state for a session.
func (s *InMemoryStore) DeleteFlowState(sessionID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, sessionKey{sessionID, flowType})
	return nil
}

// SaveSession creates or updates a session record.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// GetSession retrieves a session by ID.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteSession removes a session and its flow state.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	for key := range s.flowStates {
		if key.sessionID == id {
			delete(s.flowStates, key)
		}
	}
	return nil
}

// DeleteIdleSessions sweeps sessions idle past the cutoff.
func (s *InMemoryStore) DeleteIdleSessions(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			for key := range s.flowStates {
				if key.sessionID == id {
					delete(s.flowStates, key)
				}
			}
			swept++
		}
	}
	return swept, nil
}

// AddBooking persists a confirmed booking.
func (s *InMemoryStore) AddBooking(booking models.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, booking)
	return nil
}

// GetBookings lists confirmed bookings, newest first.
func (s *InMemoryStore) GetBookings() ([]models.BookingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BookingRecord, len(s.bookings))
	for i, b := range s.bookings {
		out[len(s.bookings)-1-i] = b
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// cloneFlowState copies a flow state so callers cannot mutate stored data.
func cloneFlowState(state models.FlowState) models.FlowState {
	if state.StateData != nil {
		data := make(map[models.DataKey]string, len(state.StateData))
		for k, v := range state.StateData {
			data[k] = v
		}
		state.StateData = data
	}
	return state
}
