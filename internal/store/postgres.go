// Package store provides storage backends for Bookline.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/bookline/bookline/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the configured DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL store ready")

	return &PostgresStore{db: db}, nil
}

// SaveFlowState stores or updates flow state for a session.
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT INTO flow_states (session_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, flow_type) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			state_data = EXCLUDED.state_data,
			updated_at = EXCLUDED.updated_at`

	stateDataJSON, err := marshalStateData(state.StateData)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState marshal failed", "error", err, "sessionID", state.SessionID)
		return err
	}

	_, err = s.db.Exec(query, state.SessionID, string(state.FlowType), string(state.CurrentState),
		stateDataJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "sessionID", state.SessionID, "flowType", state.FlowType)
		return err
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "sessionID", state.SessionID, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a session.
func (s *PostgresStore) GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error) {
	query := `SELECT session_id, flow_type, current_state, state_data, created_at, updated_at
			  FROM flow_states WHERE session_id = $1 AND flow_type = $2`

	var state models.FlowState
	var stateDataJSON string

	err := s.db.QueryRow(query, sessionID, string(flowType)).Scan(
		&state.SessionID, &state.FlowType, &state.CurrentState,
		&stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetFlowState not found", "sessionID", sessionID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return nil, err
	}

	state.StateData = unmarshalStateData(stateDataJSON, sessionID)
	return &state, nil
}

// DeleteFlowState removes flow state for a session.
func (s *PostgresStore) DeleteFlowState(sessionID string, flowType models.FlowType) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = $1 AND flow_type = $2`, sessionID, string(flowType))
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}
	slog.Debug("PostgresStore DeleteFlowState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}

// SaveSession creates or updates a session record.
func (s *PostgresStore) SaveSession(session models.Session) error {
	query := `
		INSERT INTO sessions (id, channel, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			channel = EXCLUDED.channel,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, session.ID, session.Channel, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(`SELECT id, channel, created_at, updated_at FROM sessions WHERE id = $1`, id).
		Scan(&session.ID, &session.Channel, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session and its flow state.
func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession flow state cleanup failed", "error", err, "sessionID", id)
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	return nil
}

// DeleteIdleSessions sweeps sessions idle past the cutoff.
func (s *PostgresStore) DeleteIdleSessions(cutoff time.Time) (int, error) {
	if _, err := s.db.Exec(
		`DELETE FROM flow_states WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < $1)`, cutoff); err != nil {
		slog.Error("PostgresStore DeleteIdleSessions flow state cleanup failed", "error", err)
		return 0, err
	}
	result, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteIdleSessions failed", "error", err)
		return 0, err
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("PostgresStore DeleteIdleSessions succeeded", "swept", swept)
	return int(swept), nil
}

// AddBooking persists a confirmed booking.
func (s *PostgresStore) AddBooking(booking models.BookingRecord) error {
	query := `INSERT INTO bookings (id, session_id, name, email, slot_start, slot_end, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(query, booking.ID, booking.SessionID, booking.Name, booking.Email,
		booking.SlotStart, booking.SlotEnd, booking.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddBooking failed", "error", err, "bookingID", booking.ID)
		return fmt.Errorf("failed to insert booking %s: %w", booking.ID, err)
	}
	slog.Debug("PostgresStore AddBooking succeeded", "bookingID", booking.ID)
	return nil
}

// GetBookings lists confirmed bookings, newest first.
func (s *PostgresStore) GetBookings() ([]models.BookingRecord, error) {
	rows, err := s.db.Query(`SELECT id, session_id, name, email, slot_start, slot_end, created_at
							 FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore GetBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.BookingRecord
	for rows.Next() {
		var b models.BookingRecord
		if err := rows.Scan(&b.ID, &b.SessionID, &b.Name, &b.Email, &b.SlotStart, &b.SlotEnd, &b.CreatedAt); err != nil {
			slog.Error("PostgresStore GetBookings scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetBookings rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
