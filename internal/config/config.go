package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	PostgresURL  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	SheetsRequestsPerMinute  int

	// Generation worker
	GenerationInterval    time.Duration
	GenerationConcurrency int
	DefaultMonthStartDay  int

	// Marker cache
	MarkerCacheSize int
	MarkerCacheTTL  time.Duration

	LogLevel string
}

var validBackends = []string{"memory", "sqlite", "postgres"}

func Load() *Config {
	cfg := &Config{
		DataBackend: getEnv("DATA_BACKEND", "sqlite"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gagyebu.db"),
		PostgresURL:  getEnv("POSTGRES_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gagyebu"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_transactions"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Ledger"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		SheetsRequestsPerMinute:  getEnvInt("SHEETS_REQUESTS_PER_MINUTE", 60),

		GenerationInterval:    getEnvDuration("GENERATION_INTERVAL", time.Hour),
		GenerationConcurrency: getEnvInt("GENERATION_CONCURRENCY", 4),
		DefaultMonthStartDay:  getEnvInt("DEFAULT_MONTH_START_DAY", 1),

		MarkerCacheSize: getEnvInt("MARKER_CACHE_SIZE", 1000),
		MarkerCacheTTL:  getEnvDuration("MARKER_CACHE_TTL", 24*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	// AMQP is optional; when set it must be complete
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.SheetsRequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid sheets requests per minute %d: must be positive", c.SheetsRequestsPerMinute))
	}

	if c.GenerationInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid generation interval %v: must be at least 1 minute", c.GenerationInterval))
	} else if c.GenerationInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid generation interval %v: must be at most 24 hours", c.GenerationInterval))
	}

	if c.GenerationConcurrency < 1 || c.GenerationConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid generation concurrency %d: must be between 1 and 64", c.GenerationConcurrency))
	}

	if c.DefaultMonthStartDay < 1 || c.DefaultMonthStartDay > 31 {
		errors = append(errors, fmt.Sprintf("invalid default month start day %d: must be between 1 and 31", c.DefaultMonthStartDay))
	}

	if c.MarkerCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid marker cache size %d: must not be negative", c.MarkerCacheSize))
	}
	if c.MarkerCacheSize > 0 && c.MarkerCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid marker cache TTL %v: must be positive", c.MarkerCacheTTL))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsEnabled reports whether a spreadsheet export target is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// ParseLogLevel maps LOG_LEVEL values onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", s)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
