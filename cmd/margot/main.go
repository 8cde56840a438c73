package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/clinicbot/margot/internal/api"
	"github.com/clinicbot/margot/internal/caldav"
	"github.com/clinicbot/margot/internal/flow"
	"github.com/clinicbot/margot/internal/genai"
	"github.com/clinicbot/margot/internal/knowledge"
	"github.com/clinicbot/margot/internal/lockfile"
	"github.com/clinicbot/margot/internal/memory"
	"github.com/clinicbot/margot/internal/messaging"
	"github.com/clinicbot/margot/internal/store"
	"github.com/clinicbot/margot/internal/twiliowhatsapp"
	"github.com/clinicbot/margot/internal/util"
	"github.com/clinicbot/margot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Margot state data
	DefaultStateDir = "/var/lib/margot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "margot.db"
	// DefaultKnowledgePath is the default clinic knowledge base file
	DefaultKnowledgePath = "knowledge_base.json"
	// DefaultTimezone is the clinic timezone used when none is configured
	DefaultTimezone = "America/Sao_Paulo"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(config)

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Validate required configuration before touching any backend
	if missing := missingRequiredConfig(config, flags); len(missing) > 0 {
		slog.Error("Missing required configuration", "keys", strings.Join(missing, ", "))
		os.Exit(1)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard against concurrent instances sharing the same state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire instance lock", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release instance lock", "error", err)
		}
	}()

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		slog.Error("Failed to load clinic timezone", "error", err, "timezone", config.Timezone)
		os.Exit(1)
	}

	kb, err := knowledge.Load(*flags.knowledgePath)
	if err != nil {
		slog.Error("Failed to load clinic knowledge base", "error", err, "path", *flags.knowledgePath)
		os.Exit(1)
	}

	st, err := buildSessionStore(flags)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close session store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mem, err := buildPatientMemory(ctx, config)
	if err != nil {
		slog.Error("Failed to initialize patient memory", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mem.Close(); err != nil {
			slog.Warn("Failed to close patient memory", "error", err)
		}
	}()

	composer, err := genai.NewClient(buildGenAIOptions(config, flags, kb, loc)...)
	if err != nil {
		slog.Error("Failed to initialize OpenAI client", "error", err)
		os.Exit(1)
	}

	cal, err := caldav.NewClient(
		caldav.WithEndpoint(config.CalDAVURL),
		caldav.WithCredentials(config.CalDAVUsername, config.CalDAVPassword),
		caldav.WithCalendarName(config.CalDAVCalendar),
		caldav.WithLocation(loc),
	)
	if err != nil {
		slog.Error("Failed to initialize CalDAV client", "error", err)
		os.Exit(1)
	}

	svc, err := buildMessagingService(config, flags)
	if err != nil {
		slog.Error("Failed to initialize messaging service", "error", err, "backend", *flags.backend)
		os.Exit(1)
	}

	flowOpts := []flow.Option{flow.WithMemory(mem)}
	if config.ClinicName != "" {
		flowOpts = append(flowOpts, flow.WithClinicName(config.ClinicName))
	}
	if config.OperatorWhatsApp != "" {
		flowOpts = append(flowOpts, flow.WithOperatorNotification(svc, config.OperatorWhatsApp))
	}
	conv := flow.NewConversation(st, cal, composer, kb, loc, flowOpts...)

	server := api.NewServer(conv, svc, api.WithAddr(*flags.apiAddr))

	slog.Info("Bootstrapping Margot with configured modules",
		"backend", *flags.backend, "api_addr", *flags.apiAddr, "clinic", config.ClinicName)
	if err := server.Run(ctx); err != nil {
		slog.Error("Margot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Margot exited successfully")
}

// Config holds environment configuration
type Config struct {
	LogLevel         string
	Debug            bool
	DatabaseURL      string
	SessionDSN       string
	WhatsAppDSN      string
	StateDir         string
	OpenAIKey        string
	OpenAIModel      string
	CalDAVURL        string
	CalDAVUsername   string
	CalDAVPassword   string
	CalDAVCalendar   string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	KnowledgePath    string
	Timezone         string
	ClinicName       string
	OperatorWhatsApp string
	Backend          string
	APIAddr          string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	apiAddr       *string
	backend       *string
	knowledgePath *string
}

// initializeLogger sets up structured logging honoring LOG_LEVEL and DEBUG
func initializeLogger(config Config) {
	level := slog.LevelInfo
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if config.Debug {
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
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Debug:            util.ParseBoolEnv("DEBUG", false),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SessionDSN:       os.Getenv("SESSION_DB_DSN"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:         os.Getenv("MARGOT_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		CalDAVURL:        os.Getenv("CALDAV_URL"),
		CalDAVUsername:   os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:   os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendar:   os.Getenv("CALDAV_CALENDAR_NAME"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          util.ParseIntEnv("REDIS_DB", 0),
		KnowledgePath:    os.Getenv("KNOWLEDGE_BASE_PATH"),
		Timezone:         os.Getenv("DEFAULT_TIMEZONE"),
		ClinicName:       os.Getenv("CLINIC_NAME"),
		OperatorWhatsApp: os.Getenv("RELATIONSHIP_TEAM_WHATSAPP"),
		Backend:          os.Getenv("MESSAGING_BACKEND"),
		APIAddr:          os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No MARGOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.KnowledgePath == "" {
		config.KnowledgePath = DefaultKnowledgePath
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}
	if config.Backend == "" {
		config.Backend = "twilio"
	}

	// Session storage follows DATABASE_URL; a file in the state directory otherwise.
	if config.SessionDSN == "" {
		config.SessionDSN = config.DatabaseURL
	}
	if config.SessionDSN == "" {
		config.SessionDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.SessionDSN)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.SessionDSN
	}

	// The HTTP bind address follows HOST/PORT when API_ADDR is not set.
	if config.APIAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8000"
		}
		config.APIAddr = net.JoinHostPort(os.Getenv("HOST"), port)
	}

	slog.Debug("environment variables loaded",
		"MARGOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"CALDAV_URL_SET", config.CalDAVURL != "",
		"CALDAV_CALENDAR_NAME", config.CalDAVCalendar,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"MESSAGING_BACKEND", config.Backend,
		"API_ADDR", config.APIAddr,
		"DEFAULT_TIMEZONE", config.Timezone)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for Margot data (overrides $MARGOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.SessionDSN, "database DSN for session storage (overrides $SESSION_DB_DSN or $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR and $HOST/$PORT)"),
		backend:       flag.String("backend", config.Backend, "messaging backend, twilio or whatsapp (overrides $MESSAGING_BACKEND)"),
		knowledgePath: flag.String("knowledge-base", config.KnowledgePath, "path to the clinic knowledge base JSON (overrides $KNOWLEDGE_BASE_PATH)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend,
		"knowledgePath", *flags.knowledgePath)

	// Keep the default SQLite path attached to the state directory when it moves.
	if *flags.dbDSN == config.SessionDSN && config.SessionDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// missingRequiredConfig reports every required key that is absent so operators
// can fix the whole set in one pass.
func missingRequiredConfig(config Config, flags Flags) []string {
	var missing []string
	if config.CalDAVURL == "" {
		missing = append(missing, "CALDAV_URL")
	}
	if config.CalDAVUsername == "" {
		missing = append(missing, "CALDAV_USERNAME")
	}
	if config.CalDAVPassword == "" {
		missing = append(missing, "CALDAV_PASSWORD")
	}
	if config.CalDAVCalendar == "" {
		missing = append(missing, "CALDAV_CALENDAR_NAME")
	}
	if *flags.openaiKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if *flags.backend == "twilio" {
		if config.TwilioAccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if config.TwilioAuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if config.TwilioFrom == "" {
			missing = append(missing, "TWILIO_WHATSAPP_NUMBER")
		}
	}
	return missing
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based database", "dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dbDir)
			return err
		}
	}
	return nil
}

// buildSessionStore selects the session store backend from the configured DSN.
func buildSessionStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory session store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL session store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite session store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildPatientMemory connects the Redis patient memory when configured and
// falls back to a no-op memory otherwise.
func buildPatientMemory(ctx context.Context, config Config) (memory.Memory, error) {
	if config.RedisAddr == "" {
		slog.Debug("No REDIS_ADDR set, patient memory disabled")
		return memory.NewNoopMemory(), nil
	}
	return memory.NewRedisMemory(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
}

// buildGenAIOptions constructs OpenAI client configuration options
func buildGenAIOptions(config Config, flags Flags, kb *knowledge.Base, loc *time.Location) []genai.Option {
	formation, plasticSpec := kb.DoctorYears()
	genaiOpts := []genai.Option{
		genai.WithAPIKey(*flags.openaiKey),
		genai.WithDoctorYears(formation, plasticSpec),
		genai.WithLocation(loc),
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	return genaiOpts
}

// buildMessagingService constructs the outbound messaging backend.
func buildMessagingService(config Config, flags Flags) (messaging.Service, error) {
	switch *flags.backend {
	case "whatsapp":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(config.TwilioFrom),
		)
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	}
}
