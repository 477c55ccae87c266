package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds the typed settings of the whole pipeline
type UnifiedConfiguration struct {
	Browser BrowserConfig `json:"browser"`
	Scraper ScraperConfig `json:"scraper"`
	Cache   CacheConfig   `json:"cache"`
	Pacing  PacingProfile `json:"pacing"`
	Store   StoreConfig   `json:"store"`
	Logging LoggingConfig `json:"logging"`
}

// BrowserConfig configures the anti-detection session factory
type BrowserConfig struct {
	Headless       bool          `json:"headless"`
	ExecPath       string        `json:"exec_path,omitempty"`
	ViewportWidth  int64         `json:"viewport_width"`
	ViewportHeight int64         `json:"viewport_height"`
	Locale         string        `json:"locale"`
	Timezone       string        `json:"timezone"`
	Latitude       float64       `json:"latitude"`
	Longitude      float64       `json:"longitude"`
	LaunchTimeout  time.Duration `json:"launch_timeout"`
}

// ScraperConfig bounds the scraping passes
type ScraperConfig struct {
	NavigationTimeout  time.Duration `json:"navigation_timeout"`
	MaxPaginationRuns  int           `json:"max_pagination_runs"`
	MaxNameLength      int           `json:"max_name_length"`
	StaticFetchTimeout time.Duration `json:"static_fetch_timeout"`
}

// CacheConfig holds catalog cache configuration
type CacheConfig struct {
	CatalogTTL time.Duration `json:"catalog_ttl"`
	StoreKey   string        `json:"store_key"`
	HistoryCap int           `json:"history_cap"`
}

// StoreConfig selects the key-value backend
type StoreConfig struct {
	Backend         string        `json:"backend"`
	DatabaseURL     string        `json:"database_url,omitempty"`
	RedisURL        string        `json:"redis_url,omitempty"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	File        string `json:"file,omitempty"`
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1366,
			ViewportHeight: 768,
			Locale:         "en-US",
			Timezone:       "America/New_York",
			Latitude:       40.7580,
			Longitude:      -73.9855,
			LaunchTimeout:  30 * time.Second,
		},
		Scraper: ScraperConfig{
			NavigationTimeout:  30 * time.Second,
			MaxPaginationRuns:  3,
			MaxNameLength:      100,
			StaticFetchTimeout: 20 * time.Second,
		},
		Cache: CacheConfig{
			CatalogTTL: 24 * time.Hour,
			StoreKey:   "catalog:shows",
			HistoryCap: 100,
		},
		Pacing: DefaultPacingProfile(),
		Store: StoreConfig{
			Backend:         "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			MaxSizeMB:   50,
			MaxBackups:  5,
			MaxAgeDays:  14,
			ServiceName: "lottery-backend",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportWidth = defaults.Browser.ViewportWidth
		c.Browser.ViewportHeight = defaults.Browser.ViewportHeight
		logger.Debug("Applied default Browser viewport")
	}
	if c.Browser.Locale == "" {
		c.Browser.Locale = defaults.Browser.Locale
	}
	if c.Browser.Timezone == "" {
		c.Browser.Timezone = defaults.Browser.Timezone
		logger.Debug("Applied default Browser.Timezone")
	}
	if c.Browser.Latitude == 0 && c.Browser.Longitude == 0 {
		c.Browser.Latitude = defaults.Browser.Latitude
		c.Browser.Longitude = defaults.Browser.Longitude
	}
	if c.Browser.LaunchTimeout <= 0 {
		c.Browser.LaunchTimeout = defaults.Browser.LaunchTimeout
	}

	if c.Scraper.NavigationTimeout <= 0 {
		c.Scraper.NavigationTimeout = defaults.Scraper.NavigationTimeout
		logger.Debug("Applied default Scraper.NavigationTimeout")
	}
	if c.Scraper.MaxPaginationRuns < 0 {
		c.Scraper.MaxPaginationRuns = defaults.Scraper.MaxPaginationRuns
	}
	if c.Scraper.MaxNameLength <= 0 {
		c.Scraper.MaxNameLength = defaults.Scraper.MaxNameLength
	}
	if c.Scraper.StaticFetchTimeout <= 0 {
		c.Scraper.StaticFetchTimeout = defaults.Scraper.StaticFetchTimeout
	}

	if c.Cache.CatalogTTL <= 0 {
		c.Cache.CatalogTTL = defaults.Cache.CatalogTTL
		logger.Debug("Applied default Cache.CatalogTTL")
	}
	if c.Cache.StoreKey == "" {
		c.Cache.StoreKey = defaults.Cache.StoreKey
	}
	if c.Cache.HistoryCap <= 0 {
		c.Cache.HistoryCap = defaults.Cache.HistoryCap
	}

	switch c.Store.Backend {
	case "memory", "postgres", "redis":
	default:
		logger.WithField("backend", c.Store.Backend).Warn("Unknown store backend, using memory")
		c.Store.Backend = "memory"
	}
	if c.Store.MaxOpenConns <= 0 {
		c.Store.MaxOpenConns = defaults.Store.MaxOpenConns
	}
	if c.Store.MaxIdleConns <= 0 {
		c.Store.MaxIdleConns = defaults.Store.MaxIdleConns
	}
	if c.Store.ConnMaxLifetime <= 0 {
		c.Store.ConnMaxLifetime = defaults.Store.ConnMaxLifetime
	}
	if c.Store.PingTimeout <= 0 {
		c.Store.PingTimeout = defaults.Store.PingTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFromJSON deserializes configuration from JSON
func (c *UnifiedConfiguration) LoadFromJSON(jsonData []byte) error {
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.ValidateAndApplyDefaults()
	return nil
}
