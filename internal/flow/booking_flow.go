package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/bookline/internal/calendar"
	"github.com/bookline/bookline/internal/genai"
	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/schedule"
	"github.com/bookline/bookline/internal/store"
)

// Bot replies used by the booking conversation.
const (
	msgGreeting = "Sure, I'd be happy to help you book an appointment. Can you please provide your name?"
	msgFallback = "I can help you book an appointment. Just say something like \"I'd like to book an appointment\" to get started."
	msgGoodbye  = "Thank you for reaching out. Goodbye!"
	msgAskName  = "I didn't catch your name. Could you tell me your name, please?"
	msgNoSlots  = "I'm sorry, there are no free slots in the booking window right now. Please check back later."
	msgFailed   = "I'm sorry, I couldn't complete your booking right now. Please try again later."
)

// BookingFlow drives the appointment booking conversation. Each session
// moves through intent, name, email and slot selection, and every user
// turn produces exactly one bot reply.
type BookingFlow struct {
	stateManager StateManager
	nlu          genai.ClientInterface
	calendar     calendar.Service
	store        store.Store
	window       models.BookingWindow
	now          func() time.Time
}

// BookingFlowOpts configures optional BookingFlow settings.
type BookingFlowOpts struct {
	Window models.BookingWindow
	Now    func() time.Time
}

// BookingFlowOption configures optional BookingFlow settings.
type BookingFlowOption func(*BookingFlowOpts)

// WithBookingWindow overrides the default booking window.
func WithBookingWindow(window models.BookingWindow) BookingFlowOption {
	return func(o *BookingFlowOpts) {
		o.Window = window
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) BookingFlowOption {
	return func(o *BookingFlowOpts) {
		o.Now = now
	}
}

// NewBookingFlow creates a booking flow with the given collaborators.
func NewBookingFlow(sm StateManager, nlu genai.ClientInterface, cal calendar.Service, st store.Store, opts ...BookingFlowOption) *BookingFlow {
	cfg := BookingFlowOpts{
		Window: models.DefaultBookingWindow(),
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating BookingFlow", "daysAhead", cfg.Window.DaysAhead)
	return &BookingFlow{
		stateManager: sm,
		nlu:          nlu,
		calendar:     cal,
		store:        st,
		window:       cfg.Window,
		now:          cfg.Now,
	}
}

// ProcessMessage handles one user turn for a session and returns the bot reply.
func (f *BookingFlow) ProcessMessage(ctx context.Context, sessionID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return "", models.ErrEmptySessionID
	}
	if text == "" {
		return "", models.ErrEmptyMessage
	}
	if len(text) > models.MaxMessageLength {
		return "", models.ErrMessageTooLong
	}

	currentState, err := f.stateManager.GetCurrentState(ctx, sessionID, models.FlowTypeBooking)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation state: %w", err)
	}
	slog.Debug("BookingFlow ProcessMessage", "sessionID", sessionID, "state", currentState)

	// Farewell keywords end the conversation from any state.
	if isFarewell(text) {
		if err := f.stateManager.ResetState(ctx, sessionID, models.FlowTypeBooking); err != nil {
			slog.Error("BookingFlow farewell reset failed", "error", err, "sessionID", sessionID)
		}
		return msgGoodbye, nil
	}

	if err := f.appendTranscript(ctx, sessionID, models.SpeakerUser, text); err != nil {
		slog.Error("BookingFlow transcript append failed", "error", err, "sessionID", sessionID)
	}

	// Handlers that end the conversation delete the flow state row; the bot
	// reply must not be appended afterwards or the row comes back with a
	// stale transcript.
	var reply string
	var ended bool
	switch currentState {
	case "", models.StateAwaitingIntent:
		reply, ended, err = f.handleIntent(ctx, sessionID, text)
	case models.StateAwaitingName:
		reply, ended, err = f.handleName(ctx, sessionID, text)
	case models.StateAwaitingEmail:
		reply, ended, err = f.handleEmail(ctx, sessionID, text)
	case models.StateAwaitingSlotSelection:
		reply, ended, err = f.handleSlotSelection(ctx, sessionID, text)
	default:
		// Unrecognized persisted state (old schema, manual edit). Reset and
		// treat the turn as a fresh conversation rather than failing it.
		slog.Error("BookingFlow unknown state, resetting session", "sessionID", sessionID, "state", currentState)
		if err := f.stateManager.ResetState(ctx, sessionID, models.FlowTypeBooking); err != nil {
			return "", fmt.Errorf("failed to reset unknown state %q: %w", currentState, err)
		}
		reply, ended, err = f.handleIntent(ctx, sessionID, text)
	}
	if err != nil {
		return "", err
	}

	if !ended {
		if err := f.appendTranscript(ctx, sessionID, models.SpeakerBot, reply); err != nil {
			slog.Error("BookingFlow transcript append failed", "error", err, "sessionID", sessionID)
		}
	}
	return reply, nil
}

// Availability computes the bookable slots for the configured window,
// with calendar busy intervals removed.
func (f *BookingFlow) Availability(ctx context.Context) ([]models.Slot, error) {
	now := f.now()
	slots := schedule.Generate(f.window, now)
	if len(slots) == 0 {
		return nil, nil
	}

	from := slots[0].Start
	to := slots[len(slots)-1].End
	busy, err := f.calendar.ListBusyIntervals(ctx, from, to)
	if err != nil {
		slog.Error("BookingFlow Availability calendar lookup failed", "error", err)
		return nil, fmt.Errorf("failed to list busy intervals: %w", err)
	}
	return schedule.FilterAvailable(slots, busy), nil
}

// handleIntent classifies the opening turn and starts the booking when the
// user asks for one.
func (f *BookingFlow) handleIntent(ctx context.Context, sessionID, text string) (string, bool, error) {
	intent, err := f.nlu.ClassifyIntent(ctx, text)
	if err != nil {
		slog.Error("BookingFlow intent classification failed, using keyword fallback", "error", err, "sessionID", sessionID)
		intent = keywordIntent(text)
	}

	switch intent {
	case genai.IntentBookRequest:
		if err := f.stateManager.SetCurrentState(ctx, sessionID, models.FlowTypeBooking, models.StateAwaitingName); err != nil {
			return "", false, fmt.Errorf("failed to start booking: %w", err)
		}
		slog.Info("BookingFlow booking started", "sessionID", sessionID)
		return msgGreeting, false, nil
	case genai.IntentCancel:
		if err := f.stateManager.ResetState(ctx, sessionID, models.FlowTypeBooking); err != nil {
			slog.Error("BookingFlow cancel reset failed", "error", err, "sessionID", sessionID)
		}
		return msgGoodbye, true, nil
	default:
		return msgFallback, false, nil
	}
}

// handleName records the user's name and moves on to the email step.
func (f *BookingFlow) handleName(ctx context.Context, sessionID, text string) (string, bool, error) {
	name, err := f.nlu.ExtractName(ctx, text)
	if err != nil {
		slog.Error("BookingFlow name extraction failed, using raw text", "error", err, "sessionID", sessionID)
		name = text
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return msgAskName, false, nil
	}

	pending, err := f.loadPendingBooking(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	pending.Name = name
	if err := f.savePendingBooking(ctx, sessionID, pending); err != nil {
		return "", false, err
	}
	if err := f.stateManager.SetCurrentState(ctx, sessionID, models.FlowTypeBooking, models.StateAwaitingEmail); err != nil {
		return "", false, fmt.Errorf("failed to advance booking: %w", err)
	}
	return fmt.Sprintf("Thanks %s! Could you share your email address so I can send the confirmation?", name), false, nil
}

// handleEmail validates the email and, once accepted, offers available slots.
func (f *BookingFlow) handleEmail(ctx context.Context, sessionID, text string) (string, bool, error) {
	email := extractEmailAddress(text)
	if email == "" {
		// The NLU pass handles phrasings like "my address is foo at bar dot com".
		extracted, err := f.nlu.ExtractEmail(ctx, text)
		if err != nil {
			slog.Error("BookingFlow email extraction failed", "error", err, "sessionID", sessionID)
		} else {
			email = extractEmailAddress(extracted)
		}
	}
	if email == "" {
		return "That doesn't look like a valid email address. Could you share it again, please?", false, nil
	}

	pending, err := f.loadPendingBooking(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	pending.Email = email
	reply, err := f.offerSlots(ctx, sessionID, pending)
	return reply, false, err
}

// offerSlots computes availability, records the offered list and moves the
// session to slot selection. A calendar outage degrades to an empty offer so
// a later turn can retry instead of wedging the session.
func (f *BookingFlow) offerSlots(ctx context.Context, sessionID string, pending models.PendingBooking) (string, error) {
	available, err := f.Availability(ctx)
	if err != nil {
		slog.Error("BookingFlow slot offer degraded, calendar unavailable", "error", err, "sessionID", sessionID)
		available = nil
	}

	pending.OfferedSlots = available
	if err := f.savePendingBooking(ctx, sessionID, pending); err != nil {
		return "", err
	}
	if err := f.stateManager.SetCurrentState(ctx, sessionID, models.FlowTypeBooking, models.StateAwaitingSlotSelection); err != nil {
		return "", fmt.Errorf("failed to advance booking: %w", err)
	}

	if len(available) == 0 {
		return msgNoSlots, nil
	}
	slog.Info("BookingFlow slots offered", "sessionID", sessionID, "count", len(available))
	return fmt.Sprintf("Thank you for booking an appointment, %s. We have your email as %s. Below are our available slots:\n%s\nPlease reply with the slot number you would like to book.",
		pending.Name, pending.Email, renderSlotList(available)), nil
}

// handleSlotSelection validates the chosen slot and books the appointment.
// A successful booking ends the conversation: the session resets so the next
// turn starts a fresh one.
func (f *BookingFlow) handleSlotSelection(ctx context.Context, sessionID, text string) (string, bool, error) {
	pending, err := f.loadPendingBooking(ctx, sessionID)
	if err != nil {
		return "", false, err
	}

	selection := parseSlotSelection(text)
	if selection == 0 {
		if len(pending.OfferedSlots) == 0 {
			// The previous offer came up empty; treat any non-numeric turn
			// as a request to look again.
			reply, err := f.offerSlots(ctx, sessionID, pending)
			return reply, false, err
		}
		return fmt.Sprintf("Please reply with a slot number from the list:\n%s", renderSlotList(pending.OfferedSlots)), false, nil
	}
	if selection < 1 || selection > len(pending.OfferedSlots) {
		slog.Debug("BookingFlow slot selection out of range", "sessionID", sessionID, "selection", selection, "offered", len(pending.OfferedSlots))
		if len(pending.OfferedSlots) == 0 {
			reply, err := f.offerSlots(ctx, sessionID, pending)
			return reply, false, err
		}
		return fmt.Sprintf("Slot %d isn't on the list. Please pick a number between 1 and %d:\n%s",
			selection, len(pending.OfferedSlots), renderSlotList(pending.OfferedSlots)), false, nil
	}

	if pending.Name == "" || pending.Email == "" {
		pending = f.recoverContact(ctx, sessionID, pending)
	}
	if pending.Name == "" {
		if err := f.stateManager.SetCurrentState(ctx, sessionID, models.FlowTypeBooking, models.StateAwaitingName); err != nil {
			return "", false, fmt.Errorf("failed to rewind booking: %w", err)
		}
		return msgAskName, false, nil
	}

	slot := pending.OfferedSlots[selection-1]
	if err := f.calendar.CreateEvent(ctx, pending.Name, pending.Email, slot); err != nil {
		slog.Error("BookingFlow event creation failed", "error", err, "sessionID", sessionID)
		if resetErr := f.stateManager.ResetState(ctx, sessionID, models.FlowTypeBooking); resetErr != nil {
			slog.Error("BookingFlow reset after failed booking failed", "error", resetErr, "sessionID", sessionID)
		}
		return msgFailed, true, nil
	}

	now := f.now()
	record := models.BookingRecord{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Name:      pending.Name,
		Email:     pending.Email,
		SlotStart: slot.Start,
		SlotEnd:   slot.End,
		CreatedAt: now,
	}
	if err := f.store.AddBooking(record); err != nil {
		// The calendar event exists, so the booking stands even if the
		// local record could not be written.
		slog.Error("BookingFlow booking record save failed", "error", err, "sessionID", sessionID, "bookingID", record.ID)
	}

	if err := f.stateManager.ResetState(ctx, sessionID, models.FlowTypeBooking); err != nil {
		slog.Error("BookingFlow reset after booking failed", "error", err, "sessionID", sessionID)
	}
	slog.Info("BookingFlow booking confirmed", "sessionID", sessionID, "bookingID", record.ID, "slot", slot.Label())
	return fmt.Sprintf("Great %s, you are booked for an appointment at %s. We have your email as %s. A calendar invitation is on its way.",
		pending.Name, slot.Label(), pending.Email), true, nil
}

// recoverContact re-derives a name or email lost from the pending booking.
// The email comes from scanning earlier user turns; the name from running the
// rendered transcript through the NLU in one pass.
func (f *BookingFlow) recoverContact(ctx context.Context, sessionID string, pending models.PendingBooking) models.PendingBooking {
	transcript, err := f.loadTranscript(ctx, sessionID)
	if err != nil {
		slog.Error("BookingFlow contact recovery transcript load failed", "error", err, "sessionID", sessionID)
		return pending
	}
	if pending.Email == "" {
		for _, turn := range transcript.UserTurns() {
			if email := extractEmailAddress(turn.Text); email != "" {
				pending.Email = email
				break
			}
		}
	}
	if pending.Name == "" && len(transcript.Turns) > 0 {
		name, err := f.nlu.ExtractName(ctx, transcript.Render())
		if err != nil {
			slog.Error("BookingFlow contact recovery name extraction failed", "error", err, "sessionID", sessionID)
		} else if strings.TrimSpace(name) != "" {
			pending.Name = strings.TrimSpace(name)
		}
	}
	if pending.Name != "" || pending.Email != "" {
		if err := f.savePendingBooking(ctx, sessionID, pending); err != nil {
			slog.Error("BookingFlow contact recovery save failed", "error", err, "sessionID", sessionID)
		}
	}
	return pending
}

func (f *BookingFlow) loadPendingBooking(ctx context.Context, sessionID string) (models.PendingBooking, error) {
	raw, err := f.stateManager.GetStateData(ctx, sessionID, models.FlowTypeBooking, models.DataKeyPendingBooking)
	if err != nil {
		return models.PendingBooking{}, fmt.Errorf("failed to load pending booking: %w", err)
	}
	if raw == "" {
		return models.PendingBooking{}, nil
	}
	var pending models.PendingBooking
	if err := pending.FromJSON(raw); err != nil {
		slog.Error("BookingFlow pending booking corrupt, starting over", "error", err, "sessionID", sessionID)
		return models.PendingBooking{}, nil
	}
	return pending, nil
}

func (f *BookingFlow) savePendingBooking(ctx context.Context, sessionID string, pending models.PendingBooking) error {
	raw, err := pending.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode pending booking: %w", err)
	}
	if err := f.stateManager.SetStateData(ctx, sessionID, models.FlowTypeBooking, models.DataKeyPendingBooking, raw); err != nil {
		return fmt.Errorf("failed to save pending booking: %w", err)
	}
	return nil
}

func (f *BookingFlow) loadTranscript(ctx context.Context, sessionID string) (models.Transcript, error) {
	raw, err := f.stateManager.GetStateData(ctx, sessionID, models.FlowTypeBooking, models.DataKeyTranscript)
	if err != nil {
		return models.Transcript{}, err
	}
	if raw == "" {
		return models.Transcript{}, nil
	}
	var transcript models.Transcript
	if err := transcript.FromJSON(raw); err != nil {
		slog.Error("BookingFlow transcript corrupt, starting over", "error", err, "sessionID", sessionID)
		return models.Transcript{}, nil
	}
	return transcript, nil
}

func (f *BookingFlow) appendTranscript(ctx context.Context, sessionID string, speaker models.Speaker, body string) error {
	transcript, err := f.loadTranscript(ctx, sessionID)
	if err != nil {
		return err
	}
	transcript.Append(speaker, body, f.now())
	raw, err := transcript.ToJSON()
	if err != nil {
		return err
	}
	return f.stateManager.SetStateData(ctx, sessionID, models.FlowTypeBooking, models.DataKeyTranscript, raw)
}

// keywordIntent is the fallback classifier used when the NLU is unreachable.
func keywordIntent(text string) genai.Intent {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "book") || strings.Contains(lower, "appointment") || strings.Contains(lower, "schedule") {
		return genai.IntentBookRequest
	}
	return genai.IntentOther
}
