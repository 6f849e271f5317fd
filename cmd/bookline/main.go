package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bookline/bookline/internal/api"
	"github.com/bookline/bookline/internal/calendar"
	"github.com/bookline/bookline/internal/genai"
	"github.com/bookline/bookline/internal/lockfile"
	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
	"github.com/bookline/bookline/internal/twiliochat"
	"github.com/bookline/bookline/internal/util"
	"github.com/bookline/bookline/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Bookline state data
	DefaultStateDir = "/var/lib/bookline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bookline.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	waOpts := buildWhatsAppOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	calOpts := buildCalendarOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping Bookline with configured modules")
	slog.Debug("Module options counts",
		"whatsapp", len(waOpts), "twilio", len(twilioOpts), "store", len(storeOpts),
		"genai", len(genaiOpts), "calendar", len(calOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, twilioOpts, storeOpts, genaiOpts, calOpts, apiOpts); err != nil {
		slog.Error("Bookline failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Bookline exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	CredentialsFile string
	TokenFile       string
	CalendarID      string
	Timezone        string
	DaysAhead       string
	DayStartHour    string
	DayEndHour      string
	IdleTTL         string
	WhatsAppEnabled bool
	TwilioEnabled   bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	credentials  *string
	tokenFile    *string
	calendarID   *string
	timezone     *string
	daysAhead    *int
	dayStartHour *int
	dayEndHour   *int
	idleTTL      *string
	whatsApp     *bool
	twilio       *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("BOOKLINE_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		TokenFile:       os.Getenv("GOOGLE_TOKEN_FILE"),
		CalendarID:      os.Getenv("GOOGLE_CALENDAR_ID"),
		Timezone:        os.Getenv("BOOKING_TIMEZONE"),
		DaysAhead:       os.Getenv("BOOKING_DAYS_AHEAD"),
		DayStartHour:    os.Getenv("BOOKING_DAY_START_HOUR"),
		DayEndHour:      os.Getenv("BOOKING_DAY_END_HOUR"),
		IdleTTL:         os.Getenv("SESSION_IDLE_TTL"),
		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		TwilioEnabled:   util.ParseBoolEnv("TWILIO_ENABLED", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOOKLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BOOKLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"GOOGLE_CREDENTIALS_FILE_SET", config.CredentialsFile != "",
		"BOOKING_TIMEZONE", config.Timezone,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"TWILIO_ENABLED", config.TwilioEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:      flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for Bookline data (overrides $BOOKLINE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the booking store (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		credentials:  flag.String("google-credentials", config.CredentialsFile, "Google OAuth client secret file (overrides $GOOGLE_CREDENTIALS_FILE)"),
		tokenFile:    flag.String("google-token", config.TokenFile, "Google OAuth token file (overrides $GOOGLE_TOKEN_FILE)"),
		calendarID:   flag.String("calendar-id", config.CalendarID, "Google calendar ID (overrides $GOOGLE_CALENDAR_ID)"),
		timezone:     flag.String("timezone", config.Timezone, "booking timezone, IANA name or fixed offset (overrides $BOOKING_TIMEZONE)"),
		daysAhead:    flag.Int("days-ahead", parseIntOrDefault(config.DaysAhead, 0), "how many days ahead to offer slots (overrides $BOOKING_DAYS_AHEAD)"),
		dayStartHour: flag.Int("day-start-hour", parseIntOrDefault(config.DayStartHour, 0), "first bookable hour of the day (overrides $BOOKING_DAY_START_HOUR)"),
		dayEndHour:   flag.Int("day-end-hour", parseIntOrDefault(config.DayEndHour, 0), "first non-bookable hour of the day (overrides $BOOKING_DAY_END_HOUR)"),
		idleTTL:      flag.String("session-idle-ttl", config.IdleTTL, "idle session lifetime, e.g. 24h (overrides $SESSION_IDLE_TTL)"),
		whatsApp:     flag.Bool("whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
		twilio:       flag.Bool("twilio", config.TwilioEnabled, "enable the Twilio channel (overrides $TWILIO_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"whatsApp", *flags.whatsApp,
		"twilio", *flags.twilio)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.stateDir != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options. Credentials
// come from the TWILIO_* environment variables inside the client.
func buildTwilioOptions(flags Flags) []twiliochat.Option {
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs language model client configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildCalendarOptions constructs Google Calendar configuration options
func buildCalendarOptions(flags Flags) []calendar.Option {
	var calOpts []calendar.Option
	if *flags.credentials != "" {
		calOpts = append(calOpts, calendar.WithCredentialsFile(*flags.credentials))
	}
	if *flags.tokenFile != "" {
		calOpts = append(calOpts, calendar.WithTokenFile(*flags.tokenFile))
	}
	if *flags.calendarID != "" {
		calOpts = append(calOpts, calendar.WithCalendarID(*flags.calendarID))
	}
	if loc := resolveTimezone(*flags.timezone); loc != nil {
		calOpts = append(calOpts, calendar.WithLocation(loc))
	}
	return calOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if window, ok := buildBookingWindow(flags); ok {
		apiOpts = append(apiOpts, api.WithBookingWindow(window))
	}
	if *flags.idleTTL != "" {
		if ttl, err := time.ParseDuration(*flags.idleTTL); err == nil {
			apiOpts = append(apiOpts, api.WithIdleSessionTTL(ttl))
		} else {
			slog.Warn("Invalid session idle TTL, using default", "value", *flags.idleTTL, "error", err)
		}
	}
	if *flags.whatsApp {
		apiOpts = append(apiOpts, api.WithWhatsAppChannel())
	}
	if *flags.twilio {
		apiOpts = append(apiOpts, api.WithTwilioChannel())
	}
	return apiOpts
}

// buildBookingWindow assembles a booking window from flags, starting from
// the defaults and reporting whether any flag actually changed it.
func buildBookingWindow(flags Flags) (models.BookingWindow, bool) {
	window := models.DefaultBookingWindow()
	changed := false
	if *flags.daysAhead > 0 {
		window.DaysAhead = *flags.daysAhead
		changed = true
	}
	if *flags.dayStartHour > 0 {
		window.DayStartHour = *flags.dayStartHour
		changed = true
	}
	if *flags.dayEndHour > 0 {
		window.DayEndHour = *flags.dayEndHour
		changed = true
	}
	if loc := resolveTimezone(*flags.timezone); loc != nil {
		window.Location = loc
		changed = true
	}
	if changed {
		if err := window.Validate(); err != nil {
			slog.Warn("Invalid booking window configuration, using defaults", "error", err)
			return models.BookingWindow{}, false
		}
	}
	return window, changed
}

// resolveTimezone parses an IANA zone name ("America/Toronto") or a fixed
// offset in hours ("+5", "-3"). Returns nil when unset or unparseable.
func resolveTimezone(tz string) *time.Location {
	if tz == "" {
		return nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	if offset, err := strconv.Atoi(strings.TrimPrefix(tz, "+")); err == nil {
		return time.FixedZone("UTC"+tz, offset*60*60)
	}
	slog.Warn("Unrecognized timezone, using default", "timezone", tz)
	return nil
}

func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "value", s, "default", def)
		return def
	}
	return n
}
