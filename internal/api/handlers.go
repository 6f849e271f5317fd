// Package api provides HTTP handlers for Bookline endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/util"
)

// chatHandler handles one conversation turn (POST /chat). Requests without
// a session ID are issued a fresh one, returned in the response so the
// client can continue its conversation.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
		slog.Debug("Server.chatHandler: issued new session", "sessionID", sessionID)
	}
	s.touchSession(sessionID)

	answer, err := s.flow.ProcessMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		slog.Error("Server.chatHandler: conversation turn failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.chatHandler: turn processed", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.Success(models.ChatResponse{
		SessionID: sessionID,
		Answer:    answer,
	}))
}

// bookingsHandler returns all confirmed bookings, newest first (GET /bookings).
func (s *Server) bookingsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.bookingsHandler: processing bookings request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.bookingsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	bookings, err := s.st.GetBookings()
	if err != nil {
		slog.Error("Server.bookingsHandler: failed to fetch bookings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch bookings"))
		return
	}
	slog.Debug("Server.bookingsHandler: bookings fetched", "count", len(bookings))
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}

// slotsHandler returns the currently bookable slots (GET /slots).
func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.slotsHandler: processing slots request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.slotsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slots, err := s.flow.Availability(r.Context())
	if err != nil {
		slog.Error("Server.slotsHandler: failed to compute availability", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Availability temporarily unavailable"))
		return
	}

	type slotView struct {
		Label string    `json:"label"`
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	views := make([]slotView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, slotView{Label: slot.Label(), Start: slot.Start, End: slot.End})
	}
	slog.Debug("Server.slotsHandler: slots computed", "count", len(views))
	writeJSONResponse(w, http.StatusOK, models.Success(views))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Store reachability is the main health indicator.
	if bookings, err := s.st.GetBookings(); err != nil {
		slog.Warn("Health check: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach booking store"
	} else {
		healthData["bookings"] = len(bookings)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}

// touchSession records HTTP session activity so the idle sweep spares it.
func (s *Server) touchSession(sessionID string) {
	now := time.Now()
	session, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Server.touchSession: session lookup failed", "error", err, "sessionID", sessionID)
		return
	}
	if session == nil {
		session = &models.Session{ID: sessionID, Channel: "http", CreatedAt: now}
	}
	session.UpdatedAt = now
	if err := s.st.SaveSession(*session); err != nil {
		slog.Error("Server.touchSession: session save failed", "error", err, "sessionID", sessionID)
	}
}
