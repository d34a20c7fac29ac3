// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Location resolver strategies
const (
	LocationStrategyWeighted = "weighted"
	LocationStrategyTimezone = "timezone"
	LocationStrategyGeoIP    = "geoip"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// File paths
	StoragePath  string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Engine settings
	BounceWindowMs    int    `mapstructure:"bouncewindowms"`
	SessionTTLSeconds int    `mapstructure:"sessionttlseconds"`
	LocationStrategy  string `mapstructure:"locationstrategy"`
	SessionAuditMax   int    `mapstructure:"sessionauditmax"`
	TransactionsMax   int    `mapstructure:"transactionsmax"`

	// Export settings
	ExportEndpoint        string `mapstructure:"exportendpoint"`
	ExportIntervalSeconds int    `mapstructure:"exportintervalseconds"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "glimpse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("bouncewindowms", 30000)
		v.SetDefault("sessionttlseconds", 1800)
		v.SetDefault("locationstrategy", LocationStrategyWeighted)
		v.SetDefault("sessionauditmax", 500)
		v.SetDefault("transactionsmax", 1000)
		v.SetDefault("exportendpoint", "")
		v.SetDefault("exportintervalseconds", 300)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)

		// Bind environment variables
		v.BindEnv("appname", "GLIMPSE_APP_NAME")
		v.BindEnv("appport", "GLIMPSE_APP_PORT")
		v.BindEnv("environment", "GLIMPSE_ENV")
		v.BindEnv("loglevel", "GLIMPSE_LOG_LEVEL")
		v.BindEnv("storagepath", "GLIMPSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "GLIMPSE_GEO_DB_PATH")
		v.BindEnv("logsdir", "GLIMPSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "GLIMPSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "GLIMPSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "GLIMPSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("bouncewindowms", "GLIMPSE_BOUNCE_WINDOW_MS")
		v.BindEnv("sessionttlseconds", "GLIMPSE_SESSION_TTL_SECONDS")
		v.BindEnv("locationstrategy", "GLIMPSE_LOCATION_STRATEGY")
		v.BindEnv("sessionauditmax", "GLIMPSE_SESSION_AUDIT_MAX")
		v.BindEnv("transactionsmax", "GLIMPSE_TRANSACTIONS_MAX")
		v.BindEnv("exportendpoint", "GLIMPSE_EXPORT_ENDPOINT")
		v.BindEnv("exportintervalseconds", "GLIMPSE_EXPORT_INTERVAL_SECONDS")
		v.BindEnv("jobintervalseconds", "GLIMPSE_JOB_INTERVAL_SECONDS")
		v.BindEnv("dbmaxopenconns", "GLIMPSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "GLIMPSE_DB_MAX_IDLE_CONNS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validStrategies := map[string]bool{
		LocationStrategyWeighted: true,
		LocationStrategyTimezone: true,
		LocationStrategyGeoIP:    true,
	}
	if !validStrategies[c.LocationStrategy] {
		return fmt.Errorf("invalid location strategy: %s", c.LocationStrategy)
	}

	if c.BounceWindowMs <= 0 {
		return fmt.Errorf("invalid bounce window: %d", c.BounceWindowMs)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.StoragePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// GetBounceWindow returns the bounce observation window as a duration.
func (c *Config) GetBounceWindow() time.Duration {
	return time.Duration(c.BounceWindowMs) * time.Millisecond
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for test stability)
// - Development/Production: 10 (allows concurrent reads for dashboard queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
