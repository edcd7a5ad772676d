package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/api"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/dispatch"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/flow"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/followup"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/lockfile"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/scheduler"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/twiliowhatsapp"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for chatbot state data
	DefaultStateDir = "/var/lib/chatbot-precatorios"
	// DefaultAppDBFileName is the default SQLite database filename for the application store
	DefaultAppDBFileName = "chatbot.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the whatsmeow session store
	DefaultWhatsAppDBFileName = "whatsmeow.db"

	// DefaultFollowUpDelay is how long a contact may sit in the term-sent
	// state before the follow-up nudge goes out.
	DefaultFollowUpDelay = 24 * time.Hour
	// DefaultFollowUpPollInterval is how often the follow-up poller scans for due contacts.
	DefaultFollowUpPollInterval = time.Hour

	// ProviderTwilio selects the Twilio WhatsApp transport.
	ProviderTwilio = "twilio"
	// ProviderWhatsApp selects the direct whatsmeow transport.
	ProviderWhatsApp = "whatsapp"
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

	slog.Info("Bootstrapping chatbot-precatorios", "provider", *flags.provider)
	if err := run(config, flags); err != nil {
		slog.Error("chatbot-precatorios failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("chatbot-precatorios exited successfully")
}

// Config holds environment configuration
type Config struct {
	Provider         string
	DatabaseURL      string
	WhatsAppDSN      string
	StateDir         string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TemplateSID      string
	TemplateBody     string
	TermoURL         string
	TermoFile        string
	TermoKeywords    []string
	FollowUpDelay    time.Duration
	FollowUpPoll     time.Duration
	APIAddr          string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	dbDSN         *string
	whatsappDBDSN *string
	provider      *string
	apiAddr       *string
	termoURL      *string
	termoFile     *string
}

// initializeLogger sets up structured logging. CHATBOT_DEBUG=true raises the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CHATBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		Provider:         os.Getenv("MESSAGING_PROVIDER"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:         os.Getenv("CHATBOT_STATE_DIR"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		TemplateSID:      os.Getenv("TWILIO_TEMPLATE_SID"),
		TemplateBody:     os.Getenv("TEMPLATE_BODY"),
		TermoURL:         os.Getenv("TERMO_URL"),
		TermoFile:        os.Getenv("TERMO_FILE"),
		TermoKeywords:    util.ParseListEnv("TERMO_KEYWORDS", nil),
		FollowUpDelay:    util.ParseDurationEnv("FOLLOWUP_DELAY", DefaultFollowUpDelay),
		FollowUpPoll:     util.ParseDurationEnv("FOLLOWUP_POLL_INTERVAL", DefaultFollowUpPollInterval),
		APIAddr:          os.Getenv("API_ADDR"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CHATBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("CHATBOT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Default the messaging provider to Twilio
	if config.Provider == "" {
		config.Provider = ProviderTwilio
		slog.Debug("No MESSAGING_PROVIDER set, using default", "provider", config.Provider)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No application database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The whatsmeow session store keeps its own database so that relinking
	// WhatsApp never touches contact or message history.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = defaultWhatsAppDSN(config.StateDir)
		slog.Debug("No WhatsApp session DSN provided, defaulting to SQLite", "sqlite_dsn", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_PROVIDER", config.Provider,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"CHATBOT_STATE_DIR", config.StateDir,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"TWILIO_WHATSAPP_NUMBER_SET", config.TwilioFromNumber != "",
		"TWILIO_TEMPLATE_SID_SET", config.TemplateSID != "",
		"TERMO_URL_SET", config.TermoURL != "",
		"TERMO_FILE_SET", config.TermoFile != "",
		"TERMO_KEYWORDS", len(config.TermoKeywords),
		"FOLLOWUP_DELAY", config.FollowUpDelay,
		"FOLLOWUP_POLL_INTERVAL", config.FollowUpPoll,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for chatbot data (overrides $CHATBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "application database DSN (overrides $DATABASE_URL)"),
		whatsappDBDSN: flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "WhatsApp session database DSN (overrides $WHATSAPP_DB_DSN)"),
		provider:      flag.String("provider", config.Provider, "messaging provider, twilio or whatsapp (overrides $MESSAGING_PROVIDER)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		termoURL:      flag.String("termo-url", config.TermoURL, "public URL of the consent term (overrides $TERMO_URL)"),
		termoFile:     flag.String("termo-file", config.TermoFile, "local path of the consent term served at /static/termo (overrides $TERMO_FILE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"whatsappDBDSN_set", *flags.whatsappDBDSN != "",
		"provider", *flags.provider,
		"apiAddr", *flags.apiAddr,
		"termoURL_set", *flags.termoURL != "",
		"termoFile_set", *flags.termoFile != "")

	// Update database DSNs if not explicitly set but state directory is provided
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
			slog.Debug("Updated application DSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
		}
		if *flags.whatsappDBDSN == config.WhatsAppDSN && config.WhatsAppDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDBDSN = defaultWhatsAppDSN(*flags.stateDir)
			slog.Debug("Updated WhatsApp session DSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
		}
	}

	return flags
}

// defaultWhatsAppDSN builds the whatsmeow SQLite DSN under dir with foreign
// keys enabled, as whatsmeow recommends.
func defaultWhatsAppDSN(dir string) string {
	return "file:" + filepath.Join(dir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// sqlitePathFromDSN extracts the filesystem path from a SQLite DSN. Returns ""
// for PostgreSQL DSNs, which need no local directory.
func sqlitePathFromDSN(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	return path
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.whatsappDBDSN} {
		path := sqlitePathFromDSN(dsn)
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		slog.Debug("Creating state directory for file-based database", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio client configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var twOpts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(config.TwilioFromNumber))
	}
	return twOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.termoFile != "" {
		apiOpts = append(apiOpts, api.WithTermFile(*flags.termoFile))
	}
	return apiOpts
}

// appStore is the combined persistence surface the service wires together.
type appStore interface {
	store.Store
	store.BatchRepo
}

// buildStore opens the application store for the configured DSN.
func buildStore(dsn string) (appStore, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, opening PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, opening SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService constructs the messaging service for the selected provider.
func buildMessagingService(config Config, flags Flags) (messaging.Service, error) {
	switch *flags.provider {
	case ProviderTwilio:
		if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" || config.TwilioFromNumber == "" || config.TemplateSID == "" {
			return nil, fmt.Errorf("twilio provider requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_WHATSAPP_NUMBER and TWILIO_TEMPLATE_SID")
		}
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case ProviderWhatsApp:
		if config.TemplateBody == "" {
			slog.Warn("TEMPLATE_BODY not set; template sends over whatsmeow will fail")
		}
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client, config.TemplateBody), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", *flags.provider)
	}
}

// run wires the store, messaging service, conversation flow, batch dispatcher,
// follow-up scheduler and API server together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second instance against the same state directory would double-send
	// outreach messages, so refuse to start.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("State directory lock release failed", "error", err)
		}
	}()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open application store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Application store close failed", "error", err)
		}
	}()

	svc, err := buildMessagingService(config, flags)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Warn("Messaging service stop failed", "error", err)
		}
	}()

	if *flags.termoURL == "" {
		slog.Warn("TERMO_URL not configured; consent replies will not include a link")
	}
	engine := flow.NewEngine(st, svc, flow.NewFlow(*flags.termoURL, config.TermoKeywords))
	messaging.NewConsumer(svc, engine, st).Start(ctx)

	trigger := dispatch.NewTrigger(st, svc, config.TemplateSID, config.TemplateBody)
	runner := dispatch.NewRunner(st, trigger.DispatchItem, 0)
	if err := runner.RecoverStaleItems(); err != nil {
		slog.Warn("Stale batch item recovery failed", "error", err)
	}
	go runner.Run(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	poller := followup.NewPoller(st, svc, config.FollowUpDelay)
	if err := sched.AddEvery(config.FollowUpPoll, func() { poller.Run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule follow-up poller: %w", err)
	}

	server := api.NewServer(st, st, svc, engine, trigger, buildAPIOptions(flags)...)
	slog.Info("chatbot-precatorios running", "api_addr", *flags.apiAddr, "provider", *flags.provider)
	return server.Run(ctx)
}
