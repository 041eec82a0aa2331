package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zailonsoft/carbot/internal/api"
	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/store"
	"github.com/zailonsoft/carbot/internal/util"
	"github.com/zailonsoft/carbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for carbot state data
	DefaultStateDir = "/var/lib/carbot"
	// DefaultDBFileName is the SQLite file holding the report log and inbound dedup
	DefaultDBFileName = "carbot.db"
	// DefaultWhatsAppDBFileName is the SQLite file holding the whatsmeow device
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultDocumentsDir is where uploads land when no bucket is configured
	DefaultDocumentsDir = "documents"
	// DefaultTimezone is used for report timestamps
	DefaultTimezone = "America/Sao_Paulo"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(config.LogLevel)

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping carbot", "twilio", *flags.useTwilio, "state_dir", *flags.stateDir)
	slog.Debug("Final configuration",
		"db_dsn_type", store.DetectDSNType(*flags.dbDSN),
		"catalog_url_set", *flags.catalogURL != "",
		"catalog_file", *flags.catalogFile,
		"profile", *flags.profileFile,
		"redis_set", *flags.redisAddr != "",
		"media_bucket", config.MediaBucket,
		"api_addr", *flags.apiAddr)
	if err := run(config, flags); err != nil {
		slog.Error("carbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("carbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	WhatsAppDSN     string
	DatabaseURL     string
	CatalogURL      string
	CatalogFile     string
	CatalogCacheTTL time.Duration
	ProfileFile     string
	StaffContacts   []string
	RedisAddr       string
	RedisPassword   string
	MediaBucket     string
	MediaPrefix     string
	AWSRegion       string
	UseTwilio       bool
	TwilioVerify    bool
	PublicBaseURL   string
	APIAddr         string
	LogLevel        string
	Timezone        string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	qrImage     *string
	numeric     *bool
	stateDir    *string
	waDSN       *string
	dbDSN       *string
	catalogURL  *string
	catalogFile *string
	profileFile *string
	redisAddr   *string
	useTwilio   *bool
	apiAddr     *string
}

// initializeLogger sets up structured logging; debug unless LOG_LEVEL says otherwise
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// whatsmeowLogLevel maps LOG_LEVEL onto the whatsmeow logger names.
func whatsmeowLogLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	default:
		return whatsapp.DefaultLogLevel
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        os.Getenv("CARBOT_STATE_DIR"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CatalogURL:      os.Getenv("CATALOG_URL"),
		CatalogFile:     os.Getenv("CATALOG_FILE"),
		CatalogCacheTTL: util.ParseDurationEnv("CATALOG_CACHE_TTL", catalog.DefaultCacheTTL),
		ProfileFile:     os.Getenv("PROFILE_FILE"),
		StaffContacts:   util.SplitList(os.Getenv("STAFF_CONTACTS")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		MediaBucket:     os.Getenv("MEDIA_S3_BUCKET"),
		MediaPrefix:     os.Getenv("MEDIA_S3_PREFIX"),
		AWSRegion:       os.Getenv("AWS_REGION"),
		UseTwilio:       util.ParseBoolEnv("USE_TWILIO", false),
		TwilioVerify:    util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", true),
		PublicBaseURL:   os.Getenv("TWILIO_PUBLIC_BASE_URL"),
		APIAddr:         os.Getenv("API_ADDR"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		Timezone:        os.Getenv("CARBOT_TIMEZONE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = whatsAppDSN(config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}

	slog.Debug("environment variables loaded",
		"CARBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CATALOG_URL_SET", config.CatalogURL != "",
		"STAFF_CONTACTS", len(config.StaffContacts),
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"MEDIA_S3_BUCKET", config.MediaBucket,
		"USE_TWILIO", config.UseTwilio,
		"API_ADDR", config.APIAddr)

	return config
}

func whatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	return parseFlags(flag.CommandLine, os.Args[1:], config)
}

func parseFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:    fs.String("qr-output", "", "path to write the login QR code as text"),
		qrImage:     fs.String("qr-image", "", "path to write the login QR code as PNG"),
		numeric:     fs.Bool("numeric-code", false, "print the raw login code instead of a QR code"),
		stateDir:    fs.String("state-dir", config.StateDir, "state directory for carbot data (overrides $CARBOT_STATE_DIR)"),
		waDSN:       fs.String("whatsapp-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		dbDSN:       fs.String("db-dsn", config.DatabaseURL, "report log database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		catalogURL:  fs.String("catalog-url", config.CatalogURL, "dealership catalog service base URL (overrides $CATALOG_URL)"),
		catalogFile: fs.String("catalog-file", config.CatalogFile, "JSON or YAML vehicle catalog file (overrides $CATALOG_FILE)"),
		profileFile: fs.String("profile", config.ProfileFile, "YAML dealership profile (overrides $PROFILE_FILE)"),
		redisAddr:   fs.String("redis-addr", config.RedisAddr, "Redis address for the greeting throttle (overrides $REDIS_ADDR)"),
		useTwilio:   fs.Bool("twilio", config.UseTwilio, "use Twilio instead of a linked WhatsApp device (overrides $USE_TWILIO)"),
		apiAddr:     fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed", "error", err)
	}

	// Follow a -state-dir override when the DSNs still point at the old default
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.waDSN == whatsAppDSN(config.StateDir) {
			*flags.waDSN = whatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated DSNs based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"catalogURL_set", *flags.catalogURL != "",
		"profile", *flags.profileFile,
		"twilio", *flags.useTwilio,
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates the state directory and, for a file-based
// report log, its parent directory
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating state directory", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags, logLevel string) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithLogLevel(whatsmeowLogLevel(parseLogLevel(logLevel)))}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.qrImage != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeImage(*flags.qrImage))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory report log")
		return nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(*flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(*flags.dbDSN)}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
