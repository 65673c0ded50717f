package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxPersistBatchSize keeps one Postgres multi-row insert of observations
// (11 bind parameters per row) under the 65535 parameter limit.
const MaxPersistBatchSize = 65535 / 11

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	ReportSchedule  string // "daily" or "weekly"
	CheckSchedule   string // cron expression with seconds
	TimeZone        string
	TrackedProjects []string

	// Storage configuration
	StorageBackend   string // "memory", "azure" or "postgres"
	StorageAccount   string
	StorageContainer string
	DatabaseURL      string

	// Job status store; empty address keeps jobs in memory
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Collection
	CheckConcurrency int
	CheckTimeout     time.Duration
	CheckMaxRetries  int
	PersistBatchSize int
	MaxSyncPairs     int
	SimulationSeed   int64

	// Real engine adapter; when EngineAPIURL is empty checks are simulated
	EngineAPIURL    string
	EngineAPIKey    string
	EngineRateLimit float64

	// Analytics windows
	RecentWindowDays int
	LookbackDays     int
	DropAlertPoints  float64

	// Recommendation thresholds
	LowEngineRate      float64
	MinCitationRate    float64
	LowKeywordRate     float64
	MaxUnderperforming int
	StrongEngineRate   float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Debug:           getBoolEnv("DEBUG", false),
		ReportSchedule:  getEnv("REPORT_SCHEDULE", "weekly"),
		CheckSchedule:   getEnv("CHECK_SCHEDULE", "0 0 9 * * *"),
		TimeZone:        getEnv("TIMEZONE", "UTC"),
		TrackedProjects: getSliceEnv("TRACKED_PROJECTS", nil),

		StorageBackend:   getEnv("STORAGE_BACKEND", "memory"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "visibility"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		CheckConcurrency: getIntEnv("CHECK_CONCURRENCY", 4),
		CheckTimeout:     getDurationEnv("CHECK_TIMEOUT", 30*time.Second),
		CheckMaxRetries:  getIntEnv("CHECK_MAX_RETRIES", 1),
		PersistBatchSize: getIntEnv("PERSIST_BATCH_SIZE", 100),
		MaxSyncPairs:     getIntEnv("MAX_SYNC_PAIRS", 250),
		SimulationSeed:   int64(getIntEnv("SIMULATION_SEED", 0)),

		EngineAPIURL:    getEnv("ENGINE_API_URL", ""),
		EngineAPIKey:    getEnv("ENGINE_API_KEY", ""),
		EngineRateLimit: getFloatEnv("ENGINE_RATE_LIMIT", 2),

		RecentWindowDays: getIntEnv("RECENT_WINDOW_DAYS", 7),
		LookbackDays:     getIntEnv("LOOKBACK_DAYS", 30),
		DropAlertPoints:  getFloatEnv("DROP_ALERT_POINTS", 10),

		LowEngineRate:      getFloatEnv("REC_LOW_ENGINE_RATE", 0.40),
		MinCitationRate:    getFloatEnv("REC_MIN_CITATION_RATE", 1.5),
		LowKeywordRate:     getFloatEnv("REC_LOW_KEYWORD_RATE", 0.30),
		MaxUnderperforming: getIntEnv("REC_MAX_UNDERPERFORMING", 3),
		StrongEngineRate:   getFloatEnv("REC_STRONG_ENGINE_RATE", 0.60),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Location resolves TimeZone, falling back to UTC for unknown names.
// Per-day buckets and backfill timestamps both use it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotificationsEnabled reports whether any digest channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

func (c *Config) validate() error {
	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.TimeZone, err)
	}

	switch c.StorageBackend {
	case "memory":
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is 'postgres'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory', 'azure' or 'postgres'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.CheckConcurrency < 1 {
		return fmt.Errorf("CHECK_CONCURRENCY must be at least 1")
	}
	if c.PersistBatchSize < 1 || c.PersistBatchSize > MaxPersistBatchSize {
		return fmt.Errorf("PERSIST_BATCH_SIZE must be between 1 and %d (got %d)", MaxPersistBatchSize, c.PersistBatchSize)
	}
	if c.MaxSyncPairs < 1 {
		return fmt.Errorf("MAX_SYNC_PAIRS must be at least 1")
	}
	if c.RecentWindowDays < 1 || c.LookbackDays <= c.RecentWindowDays {
		return fmt.Errorf("LOOKBACK_DAYS must be greater than RECENT_WINDOW_DAYS (got %d and %d)", c.LookbackDays, c.RecentWindowDays)
	}

	rates := []struct {
		key   string
		value float64
	}{
		{"REC_LOW_ENGINE_RATE", c.LowEngineRate},
		{"REC_LOW_KEYWORD_RATE", c.LowKeywordRate},
		{"REC_STRONG_ENGINE_RATE", c.StrongEngineRate},
	}
	for _, rate := range rates {
		if rate.value < 0 || rate.value > 1 {
			return fmt.Errorf("%s must be a fraction between 0 and 1 (got %g)", rate.key, rate.value)
		}
	}
	if c.MinCitationRate < 0 {
		return fmt.Errorf("REC_MIN_CITATION_RATE must not be negative (got %g)", c.MinCitationRate)
	}
	if c.MaxUnderperforming < 0 {
		return fmt.Errorf("REC_MAX_UNDERPERFORMING must not be negative (got %d)", c.MaxUnderperforming)
	}
	if c.DropAlertPoints <= 0 {
		return fmt.Errorf("DROP_ALERT_POINTS must be greater than 0 (got %g)", c.DropAlertPoints)
	}

	return nil
}

// ConfigureLogging applies the shared JSON log format and the level chosen by DEBUG
func ConfigureLogging(cfg *Config) {
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	}
	return defaultValue
}
