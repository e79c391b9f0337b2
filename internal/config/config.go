package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName  string
	AppEnv   string
	AppURL   string
	Port     string
	Timezone string
	LogLevel string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret              string
	JWTExpiry              time.Duration
	TokenEmailVerifyExpiry time.Duration
	TokenMagicLinkExpiry   time.Duration
	RequireVerifiedEmail   bool

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string

	// Storage (S3-compatible, optional in development: avatar uploads are disabled without a bucket)
	S3Region               string
	S3Bucket               string
	S3AccessKey            string
	S3SecretKey            string
	S3Endpoint             string
	S3PresignExpiryPublic  time.Duration
	S3PresignExpiryPrivate time.Duration

	// Slots and feeds
	SlotReservationTTL time.Duration
	SlotSweepInterval  time.Duration
	FeedLimit          int

	// Reminders
	CheckInReminderTime   string // HH:MM in Timezone
	SessionReminderWindow time.Duration

	// Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushRelayURL    string // remote relay; empty means dispatch in-process when VAPID keys are set
	PushRelaySecret string // standard-webhooks secret shared with the relay
	PushRelayPort   string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:  envString("APP_NAME", "Accountable"),
		AppEnv:   envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:   envRequired("APP_URL"), // Required: base URL for email links and OAuth redirects
		Port:     envString("PORT", "8090"),
		Timezone: envString("TIMEZONE", "UTC"),
		LogLevel: envString("LOG_LEVEL", ""),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/accountable.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret:              envRequired("JWT_SECRET"),
		JWTExpiry:              envDuration("JWT_EXPIRY", 168*time.Hour),               // 7 days
		TokenEmailVerifyExpiry: envDuration("TOKEN_EMAIL_VERIFY_EXPIRY", 24*time.Hour), // 24 hours
		TokenMagicLinkExpiry:   envDuration("TOKEN_MAGIC_LINK_EXPIRY", 10*time.Minute), // 10 minutes
		RequireVerifiedEmail:   envBool("REQUIRE_VERIFIED_EMAIL", true),

		// OAuth
		GoogleClientID:     envString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: envString("GOOGLE_CLIENT_SECRET", ""),
		GitHubClientID:     envString("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: envString("GITHUB_CLIENT_SECRET", ""),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		S3Region:               envString("S3_REGION", "us-east-1"),
		S3Bucket:               envString("S3_BUCKET", ""),
		S3AccessKey:            envString("S3_ACCESS_KEY", ""),
		S3SecretKey:            envString("S3_SECRET_KEY", ""),
		S3Endpoint:             envString("S3_ENDPOINT", ""),
		S3PresignExpiryPublic:  envDuration("S3_PRESIGN_EXPIRY_PUBLIC", 168*time.Hour),
		S3PresignExpiryPrivate: envDuration("S3_PRESIGN_EXPIRY_PRIVATE", 1*time.Hour),

		// Slots and feeds
		SlotReservationTTL: envDuration("SLOT_RESERVATION_TTL", 15*time.Minute),
		SlotSweepInterval:  envDuration("SLOT_SWEEP_INTERVAL", time.Minute),
		FeedLimit:          envInt("FEED_LIMIT", 20),

		// Reminders
		CheckInReminderTime:   envString("CHECKIN_REMINDER_TIME", "20:00"),
		SessionReminderWindow: envDuration("SESSION_REMINDER_WINDOW", 15*time.Minute),

		// Push
		VAPIDPublicKey:  envString("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: envString("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    envString("VAPID_SUBJECT", "hello@example.com"),
		PushRelayURL:    envString("PUSH_RELAY_URL", ""),
		PushRelaySecret: envString("PUSH_RELAY_SECRET", ""),
		PushRelayPort:   envString("PUSH_RELAY_PORT", "3001"),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// LoadRelay reads the subset the standalone push relay needs. VAPID keys are
// mandatory here since sending push is all the relay does.
func LoadRelay() *Config {
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppName:         envString("APP_NAME", "Accountable"),
		AppEnv:          envString("APP_ENV", "production"),
		LogLevel:        envString("LOG_LEVEL", ""),
		DBDriver:        envString("DB_DRIVER", "sqlite"),
		DBConnection:    envString("DB_CONNECTION", "./data/accountable.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		SentryDSN:       envString("SENTRY_DSN", ""),
		VAPIDPublicKey:  envRequired("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: envRequired("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    envString("VAPID_SUBJECT", "hello@example.com"),
		PushRelaySecret: envString("PUSH_RELAY_SECRET", ""),
		PushRelayPort:   envString("PUSH_RELAY_PORT", "3001"),
	}

	if cfg.IsProduction() && cfg.PushRelaySecret == "" {
		slog.Error("production push relay requires PUSH_RELAY_SECRET")
		os.Exit(1)
	}
	return cfg
}

// LoadDB reads only what the operations commands need to open the database.
func LoadDB() *Config {
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	return &Config{
		AppEnv:             envString("APP_ENV", "development"),
		Timezone:           envString("TIMEZONE", "UTC"),
		DBDriver:           envString("DB_DRIVER", "sqlite"),
		DBConnection:       envString("DB_CONNECTION", "./data/accountable.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		SlotReservationTTL: envDuration("SLOT_RESERVATION_TTL", 15*time.Minute),
	}
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email and storage to fall back to log mode / disabled.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.S3Bucket == "" {
		slog.Error("production deployment requires S3_BUCKET for avatar uploads")
		os.Exit(1)
	}
	if cfg.PushRelayURL != "" && cfg.PushRelaySecret == "" {
		slog.Error("production deployment with a remote push relay requires PUSH_RELAY_SECRET")
		os.Exit(1)
	}
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("config invalid timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PushEnabled reports whether the server can dispatch push notifications at all.
func (c *Config) PushEnabled() bool {
	return c.PushRelayURL != "" || (c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "")
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:  c.AppName,
		AppEnv:   c.AppEnv,
		AppURL:   c.AppURL,
		Port:     c.Port,
		Timezone: c.Timezone,

		EmailFrom: c.EmailFrom,

		GoogleClientID: c.GoogleClientID,
		GitHubClientID: c.GitHubClientID,

		S3Endpoint: c.S3Endpoint,

		VAPIDPublicKey: c.VAPIDPublicKey,
	}
}
