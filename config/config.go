package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort       string
	DatabaseURL      string
	RedisURL         string
	StoreBackend     string
	AdminJWTSecret   string
	CatalogTTLHours  string
	PreferenceAPIKey string
	PreferenceAPIURL string
	PreferenceModel  string
	AMQPURL          string
	AMQPQueue        string
	ApplySchedule    string
	CatalogSchedule  string
	AutoSubmit       string
	Headless         string
	ChromePath       string
	LogLevel         string
	LogFormat        string
	LogFile          string
	ConfigFile       string
}

// GetCatalogTTL returns the catalog freshness window from environment or default
func (c *Config) GetCatalogTTL() time.Duration {
	if c.CatalogTTLHours == "" {
		return 24 * time.Hour
	}

	hours, err := strconv.Atoi(c.CatalogTTLHours)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid CATALOG_TTL_HOURS value: %s, using default 24 hours", c.CatalogTTLHours)
		return 24 * time.Hour
	}

	return time.Duration(hours) * time.Hour
}

// AutoSubmitEnabled reports whether scheduled runs press the submit control
func (c *Config) AutoSubmitEnabled() bool {
	return parseBool(c.AutoSubmit, false)
}

// HeadlessEnabled reports whether the browser runs without a window
func (c *Config) HeadlessEnabled() bool {
	return parseBool(c.Headless, true)
}

// PreferenceParsingEnabled reports whether a parser credential is configured
func (c *Config) PreferenceParsingEnabled() bool {
	return strings.TrimSpace(c.PreferenceAPIKey) != ""
}

// Unified builds the typed configuration used by the services. Values from
// CONFIG_FILE, when set, override the environment field by field.
func (c *Config) Unified() (*shared.UnifiedConfiguration, error) {
	unified := shared.NewDefaultUnifiedConfiguration()
	unified.Browser.Headless = c.HeadlessEnabled()
	unified.Browser.ExecPath = c.ChromePath
	unified.Cache.CatalogTTL = c.GetCatalogTTL()
	unified.Store.Backend = c.StoreBackend
	unified.Store.DatabaseURL = c.DatabaseURL
	unified.Store.RedisURL = c.RedisURL
	unified.Logging.Level = c.LogLevel
	unified.Logging.Format = c.LogFormat
	unified.Logging.File = c.LogFile
	unified.ValidateAndApplyDefaults()

	if c.ConfigFile == "" {
		return unified, nil
	}
	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", c.ConfigFile, err)
	}
	if err := unified.LoadFromJSON(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", c.ConfigFile, err)
	}
	return unified, nil
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		StoreBackend:     getEnv("STORE_BACKEND", "memory"),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		CatalogTTLHours:  getEnv("CATALOG_TTL_HOURS", "24"),
		PreferenceAPIKey: getEnv("PREFERENCE_API_KEY", ""),
		PreferenceAPIURL: getEnv("PREFERENCE_API_URL", "https://generativelanguage.googleapis.com/v1beta"),
		PreferenceModel:  getEnv("PREFERENCE_MODEL", "gemini-2.0-flash"),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPQueue:        getEnv("AMQP_QUEUE", "lottery.results"),
		ApplySchedule:    getEnv("APPLY_SCHEDULE", "CRON_TZ=America/New_York 5 9 * * *"),
		CatalogSchedule:  getEnv("CATALOG_SCHEDULE", "CRON_TZ=America/New_York 0 6 * * *"),
		AutoSubmit:       getEnv("AUTO_SUBMIT", "false"),
		Headless:         getEnv("HEADLESS", "true"),
		ChromePath:       getEnv("CHROME_PATH", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		LogFile:          getEnv("LOG_FILE", ""),
		ConfigFile:       getEnv("CONFIG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid boolean value: %s, using default %t", value, fallback)
		return fallback
	}
	return parsed
}
