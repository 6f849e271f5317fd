// Package store provides storage backends for Bookline.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bookline/bookline/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the configured DSN (a file
// path). The containing directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "dsn_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

// SaveFlowState stores or updates flow state for a session.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT OR REPLACE INTO flow_states (session_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	stateDataJSON, err := marshalStateData(state.StateData)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState marshal failed", "error", err, "sessionID", state.SessionID)
		return err
	}

	_, err = s.db.Exec(query, state.SessionID, string(state.FlowType), string(state.CurrentState),
		stateDataJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "sessionID", state.SessionID, "flowType", state.FlowType)
		return err
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "sessionID", state.SessionID, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a session.
func (s *SQLiteStore) GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error) {
	query := `SELECT session_id, flow_type, current_state, state_data, created_at, updated_at
			  FROM flow_states WHERE session_id = ? AND flow_type = ?`

	var state models.FlowState
	var stateDataJSON string

	err := s.db.QueryRow(query, sessionID, string(flowType)).Scan(
		&state.SessionID, &state.FlowType, &state.CurrentState,
		&stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetFlowState not found", "sessionID", sessionID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return nil, err
	}

	state.StateData = unmarshalStateData(stateDataJSON, sessionID)
	return &state, nil
}

// DeleteFlowState removes flow state for a session.
func (s *SQLiteStore) DeleteFlowState(sessionID string, flowType models.FlowType) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = ? AND flow_type = ?`, sessionID, string(flowType))
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}
	slog.Debug("SQLiteStore DeleteFlowState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}

// SaveSession creates or updates a session record.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	query := `INSERT OR REPLACE INTO sessions (id, channel, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, session.ID, session.Channel, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(`SELECT id, channel, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Channel, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session and its flow state.
func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession flow state cleanup failed", "error", err, "sessionID", id)
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	return nil
}

// DeleteIdleSessions sweeps sessions idle past the cutoff.
func (s *SQLiteStore) DeleteIdleSessions(cutoff time.Time) (int, error) {
	if _, err := s.db.Exec(
		`DELETE FROM flow_states WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cutoff); err != nil {
		slog.Error("SQLiteStore DeleteIdleSessions flow state cleanup failed", "error", err)
		return 0, err
	}
	result, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteIdleSessions failed", "error", err)
		return 0, err
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("SQLiteStore DeleteIdleSessions succeeded", "swept", swept)
	return int(swept), nil
}

// AddBooking persists a confirmed booking.
func (s *SQLiteStore) AddBooking(booking models.BookingRecord) error {
	query := `INSERT INTO bookings (id, session_id, name, email, slot_start, slot_end, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, booking.ID, booking.SessionID, booking.Name, booking.Email,
		booking.SlotStart, booking.SlotEnd, booking.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddBooking failed", "error", err, "bookingID", booking.ID)
		return fmt.Errorf("failed to insert booking %s: %w", booking.ID, err)
	}
	slog.Debug("SQLiteStore AddBooking succeeded", "bookingID", booking.ID)
	return nil
}

// GetBookings lists confirmed bookings, newest first.
func (s *SQLiteStore) GetBookings() ([]models.BookingRecord, error) {
	rows, err := s.db.Query(`SELECT id, session_id, name, email, slot_start, slot_end, created_at
							 FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore GetBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.BookingRecord
	for rows.Next() {
		var b models.BookingRecord
		if err := rows.Scan(&b.ID, &b.SessionID, &b.Name, &b.Email, &b.SlotStart, &b.SlotEnd, &b.CreatedAt); err != nil {
			slog.Error("SQLiteStore GetBookings scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetBookings rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// marshalStateData serializes state data for a TEXT column; empty maps store
// as the empty string.
func marshalStateData(data map[models.DataKey]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

// unmarshalStateData parses a stored state data column. Corrupt data logs
// and degrades to an empty map instead of failing the read.
func unmarshalStateData(jsonStr, sessionID string) map[models.DataKey]string {
	if jsonStr == "" {
		return nil
	}
	data := make(map[models.DataKey]string)
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		slog.Error("Store state data unmarshal failed, continuing with empty map", "error", err, "sessionID", sessionID)
		return make(map[models.DataKey]string)
	}
	return data
}
