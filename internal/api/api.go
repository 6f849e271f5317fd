// Package api provides HTTP handlers and the main server logic for Bookline.
//
// It exposes the chat endpoint that drives the booking conversation, read
// endpoints for bookings and availability, and the Twilio inbound webhook.
// Run assembles the store, language-model client, calendar, messaging
// channels and background jobs into a running service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookline/bookline/internal/calendar"
	"github.com/bookline/bookline/internal/flow"
	"github.com/bookline/bookline/internal/genai"
	"github.com/bookline/bookline/internal/messaging"
	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/scheduler"
	"github.com/bookline/bookline/internal/store"
	"github.com/bookline/bookline/internal/twiliochat"
	"github.com/bookline/bookline/internal/whatsapp"
)

// Server configuration defaults.
const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	Window          models.BookingWindow
	IdleSessionTTL  time.Duration
	CleanupSchedule string
	EnableWhatsApp  bool
	EnableTwilio    bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithBookingWindow overrides the default booking window.
func WithBookingWindow(window models.BookingWindow) Option {
	return func(o *Opts) {
		o.Window = window
	}
}

// WithIdleSessionTTL sets how long a session may sit idle before the sweep
// removes it.
func WithIdleSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.IdleSessionTTL = ttl
	}
}

// WithCleanupSchedule sets the cron expression for the idle session sweep.
func WithCleanupSchedule(expr string) Option {
	return func(o *Opts) {
		o.CleanupSchedule = expr
	}
}

// WithWhatsAppChannel enables the WhatsApp messaging channel.
func WithWhatsAppChannel() Option {
	return func(o *Opts) {
		o.EnableWhatsApp = true
	}
}

// WithTwilioChannel enables the Twilio messaging channel and webhook.
func WithTwilioChannel() Option {
	return func(o *Opts) {
		o.EnableTwilio = true
	}
}

// Server holds the API server's dependencies.
type Server struct {
	addr      string
	st        store.Store
	flow      *flow.BookingFlow
	twilioSvc *messaging.TwilioService
}

// NewServer creates an API server over the given store and booking flow.
func NewServer(st store.Store, bf *flow.BookingFlow, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{addr: addr, st: st, flow: bf}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/bookings", s.bookingsHandler)
	mux.HandleFunc("/slots", s.slotsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.twilioSvc != nil {
		mux.HandleFunc("/twilio/inbound", s.twilioSvc.WebhookHandler)
	}
	return mux
}

// Run assembles all modules from the given options and serves until the
// process receives SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twilioOpts []twiliochat.Option, storeOpts []store.Option, genaiOpts []genai.Option, calOpts []calendar.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	nlu, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize language model client: %w", err)
	}

	// Without calendar credentials the service still answers chats; offers
	// come up empty and bookings report failure until the calendar returns.
	var cal calendar.Service
	googleCal, err := calendar.NewGoogleService(ctx, calOpts...)
	if err != nil {
		slog.Warn("Calendar unavailable, running degraded", "error", err)
		cal = calendar.NewUnavailableService()
	} else {
		cal = googleCal
	}

	stateManager := flow.NewStoreBasedStateManager(st)
	var flowOpts []flow.BookingFlowOption
	if cfg.Window.SlotDuration != 0 {
		flowOpts = append(flowOpts, flow.WithBookingWindow(cfg.Window))
	}
	bookingFlow := flow.NewBookingFlow(stateManager, nlu, cal, st, flowOpts...)

	server := NewServer(st, bookingFlow, apiOpts...)

	// Messaging channels
	if cfg.EnableWhatsApp {
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			slog.Error("WhatsApp channel failed to start, continuing without it", "error", err)
		} else {
			waService := messaging.NewWhatsAppService(waClient)
			router := messaging.NewRouter(waService, bookingFlow, st, "whatsapp")
			if err := router.Start(ctx); err != nil {
				slog.Error("WhatsApp router failed to start", "error", err)
			}
		}
	}
	if cfg.EnableTwilio {
		twClient, err := twiliochat.NewClient(twilioOpts...)
		if err != nil {
			slog.Error("Twilio channel failed to start, continuing without it", "error", err)
		} else {
			twService := messaging.NewTwilioService(twClient)
			server.twilioSvc = twService
			router := messaging.NewRouter(twService, bookingFlow, st, "twilio")
			if err := router.Start(ctx); err != nil {
				slog.Error("Twilio router failed to start", "error", err)
			}
		}
	}

	// Background idle session sweep
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleSessionCleanup(st, cfg.IdleSessionTTL, cfg.CleanupSchedule); err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Bookline API listening", "addr", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
