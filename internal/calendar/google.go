// Package calendar integrates Google Calendar as the booking provider.
//
// This file implements the production Service on the Calendar v3 API with
// OAuth2 credentials/token files persisted on disk.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bookline/bookline/internal/models"
)

// Constants for the Google Calendar integration.
const (
	// DefaultCalendarID targets the authenticated account's primary calendar.
	DefaultCalendarID = "primary"
	// EmailReminderMinutes schedules the attendee email reminder one day ahead.
	EmailReminderMinutes = 24 * 60
	// PopupReminderMinutes schedules the popup reminder shortly before the slot.
	PopupReminderMinutes = 10
)

// Opts holds configuration options for the Google Calendar service.
type Opts struct {
	CredentialsFile string // OAuth2 client secret JSON
	TokenFile       string // persisted user token JSON
	CalendarID      string
	Location        *time.Location // booking timezone busy intervals normalize into
}

// Option defines a configuration option for the Google Calendar service.
type Option func(*Opts)

// WithCredentialsFile sets the OAuth2 client secret file path.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) {
		o.CredentialsFile = path
	}
}

// WithTokenFile sets the persisted OAuth2 token file path.
func WithTokenFile(path string) Option {
	return func(o *Opts) {
		o.TokenFile = path
	}
}

// WithCalendarID targets a calendar other than primary.
func WithCalendarID(id string) Option {
	return func(o *Opts) {
		o.CalendarID = id
	}
}

// WithLocation sets the timezone busy intervals are normalized into.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// GoogleService implements Service against the Google Calendar v3 API.
type GoogleService struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogleService builds the Calendar API client from a credentials file
// and a previously provisioned token file. Interactive token acquisition is
// out of scope for a server process; a missing or stale token is an error
// telling the operator to re-provision it.
func NewGoogleService(ctx context.Context, opts ...Option) (*GoogleService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	slog.Debug("Calendar NewGoogleService options set",
		"credentials_file", cfg.CredentialsFile, "token_file", cfg.TokenFile, "calendar_id", cfg.CalendarID)

	secret, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		slog.Error("Calendar failed to read credentials file", "error", err, "path", cfg.CredentialsFile)
		return nil, fmt.Errorf("failed to read Google credentials file: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gcal.CalendarScope)
	if err != nil {
		slog.Error("Calendar failed to parse credentials file", "error", err)
		return nil, fmt.Errorf("failed to parse Google credentials file: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		slog.Error("Calendar token not available; provision it before starting", "error", err, "path", cfg.TokenFile)
		return nil, fmt.Errorf("failed to load Google OAuth token (run the token provisioning flow first): %w", err)
	}

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		slog.Error("Calendar failed to create API client", "error", err)
		return nil, fmt.Errorf("failed to create Google Calendar client: %w", err)
	}

	slog.Info("Google Calendar service initialized", "calendar_id", cfg.CalendarID)
	return &GoogleService{svc: svc, calendarID: cfg.CalendarID, loc: cfg.Location}, nil
}

// ListBusyIntervals enumerates calendar events in [from, to] and converts
// them to busy intervals in the booking timezone. This is the normalization
// boundary: no interval leaves this package in a foreign zone.
func (g *GoogleService) ListBusyIntervals(ctx context.Context, from, to time.Time) ([]models.TimeInterval, error) {
	events, err := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("Calendar ListBusyIntervals query failed", "error", err, "calendar_id", g.calendarID)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var busy []models.TimeInterval
	for _, item := range events.Items {
		interval, ok := eventToInterval(item, g.loc)
		if !ok {
			slog.Debug("Calendar skipping event without usable times", "event_id", item.Id)
			continue
		}
		busy = append(busy, interval)
	}
	slog.Debug("Calendar ListBusyIntervals succeeded", "events", len(events.Items), "busy", len(busy))
	return busy, nil
}

// CreateEvent inserts the confirmed appointment with the collected name as
// the event summary, the attendee's email, and email+popup reminders.
func (g *GoogleService) CreateEvent(ctx context.Context, name, email string, slot models.Slot) error {
	event := &gcal.Event{
		Summary: name,
		Start:   &gcal.EventDateTime{DateTime: slot.Start.Format(time.RFC3339)},
		End:     &gcal.EventDateTime{DateTime: slot.End.Format(time.RFC3339)},
		Attendees: []*gcal.EventAttendee{
			{Email: email},
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: EmailReminderMinutes},
				{Method: "popup", Minutes: PopupReminderMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := g.svc.Events.Insert(g.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		slog.Error("Calendar CreateEvent insert failed", "error", err, "calendar_id", g.calendarID, "slot", slot.Label())
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Info("Calendar event created", "event_id", created.Id, "summary", created.Summary, "slot", slot.Label())
	return nil
}

// eventToInterval converts a calendar event to a busy interval in loc.
// Timed events use their RFC3339 dateTime values; all-day events block the
// whole civil day in the booking timezone. Events without parseable times
// are skipped.
func eventToInterval(item *gcal.Event, loc *time.Location) (models.TimeInterval, bool) {
	if item == nil || item.Start == nil || item.End == nil {
		return models.TimeInterval{}, false
	}

	if item.Start.DateTime != "" && item.End.DateTime != "" {
		start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil {
			return models.TimeInterval{}, false
		}
		interval := models.TimeInterval{Start: start, End: end}.In(loc)
		if interval.Validate() != nil {
			return models.TimeInterval{}, false
		}
		return interval, true
	}

	if item.Start.Date != "" && item.End.Date != "" {
		start, err1 := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		end, err2 := time.ParseInLocation("2006-01-02", item.End.Date, loc)
		if err1 != nil || err2 != nil {
			return models.TimeInterval{}, false
		}
		interval := models.TimeInterval{Start: start, End: end}
		if interval.Validate() != nil {
			return models.TimeInterval{}, false
		}
		return interval, true
	}

	return models.TimeInterval{}, false
}

// tokenFromFile loads a persisted OAuth2 token.
func tokenFromFile(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path not set")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", path, err)
	}
	return token, nil
}
