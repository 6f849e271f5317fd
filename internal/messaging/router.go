package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
)

// ConversationFlow is the slice of the booking flow the router needs.
type ConversationFlow interface {
	ProcessMessage(ctx context.Context, sessionID, text string) (string, error)
}

// DefaultTurnTimeout bounds the handling of a single inbound message,
// including language-model and calendar calls.
const DefaultTurnTimeout = 60 * time.Second

// Router drains inbound messages from a Service and drives the booking
// conversation, sending each reply back over the same channel. The session
// ID for a messaging channel is the sender's canonical phone number, so a
// user resumes their conversation across reconnects.
type Router struct {
	service Service
	flow    ConversationFlow
	st      store.Store
	channel string
}

// NewRouter creates a router for one messaging channel. The channel name is
// recorded on each session for bookkeeping ("whatsapp", "twilio").
func NewRouter(svc Service, cf ConversationFlow, st store.Store, channel string) *Router {
	slog.Debug("Creating messaging Router", "channel", channel)
	return &Router{service: svc, flow: cf, st: st, channel: channel}
}

// Start launches the routing loop. It returns once the loop goroutine is
// running; the loop exits when the context is cancelled or the service's
// response channel closes.
func (r *Router) Start(ctx context.Context) error {
	if err := r.service.Start(ctx); err != nil {
		return err
	}
	go r.loop(ctx)
	slog.Info("Router started", "channel", r.channel)
	return nil
}

func (r *Router) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Router loop stopping", "channel", r.channel)
			return
		case resp, ok := <-r.service.Responses():
			if !ok {
				slog.Debug("Router response channel closed", "channel", r.channel)
				return
			}
			r.handleInbound(ctx, resp)
		}
	}
}

// handleInbound processes one inbound message end to end. Failures are
// logged and never stop the loop; one bad message must not take the
// channel down.
func (r *Router) handleInbound(ctx context.Context, resp models.Response) {
	sessionID, err := r.service.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		slog.Warn("Router dropping message from invalid sender", "error", err, "from", resp.From, "channel", r.channel)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, DefaultTurnTimeout)
	defer cancel()

	r.touchSession(sessionID)

	reply, err := r.flow.ProcessMessage(turnCtx, sessionID, resp.Body)
	if err != nil {
		slog.Error("Router conversation turn failed", "error", err, "sessionID", sessionID, "channel", r.channel)
		return
	}

	if err := r.service.SendMessage(turnCtx, resp.From, reply); err != nil {
		slog.Error("Router reply delivery failed", "error", err, "sessionID", sessionID, "channel", r.channel)
	}
}

// touchSession records session activity so the idle sweep spares it.
func (r *Router) touchSession(sessionID string) {
	now := time.Now()
	session, err := r.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Router session lookup failed", "error", err, "sessionID", sessionID)
		return
	}
	if session == nil {
		session = &models.Session{ID: sessionID, Channel: r.channel, CreatedAt: now}
	}
	session.UpdatedAt = now
	if err := r.st.SaveSession(*session); err != nil {
		slog.Error("Router session save failed", "error", err, "sessionID", sessionID)
	}
}
