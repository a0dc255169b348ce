// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string
	DataBackend  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Projection window: how many whole months around "now" are kept
	// materialized.
	ProjectionMonthsBack    int
	ProjectionMonthsForward int

	// Worker
	MaterializeInterval time.Duration

	// Calendar
	WeekStart time.Weekday

	// Google Sheets occurrence-ledger export (worker only)
	SheetsExportEnabled bool
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cadenza.db"),
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cadenza"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "series_changed"),

		ProjectionMonthsBack:    getEnvInt("PROJECTION_MONTHS_BACK", 1),
		ProjectionMonthsForward: getEnvInt("PROJECTION_MONTHS_FORWARD", 3),

		MaterializeInterval: getEnvDuration("MATERIALIZE_INTERVAL", time.Hour),

		WeekStart: parseWeekStart(getEnv("WEEK_START", "monday")),

		SheetsExportEnabled: getEnvBool("SHEETS_EXPORT_ENABLED", false),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Occurrences"),
	}

	return cfg
}

// Validate collects every configuration problem instead of failing on the
// first one.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite", "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be sqlite or memory", c.DataBackend))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

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

	if c.ProjectionMonthsBack < 0 || c.ProjectionMonthsBack > 24 {
		errors = append(errors, fmt.Sprintf("invalid projection months back %d: must be between 0 and 24", c.ProjectionMonthsBack))
	}
	if c.ProjectionMonthsForward < 1 || c.ProjectionMonthsForward > 60 {
		errors = append(errors, fmt.Sprintf("invalid projection months forward %d: must be between 1 and 60", c.ProjectionMonthsForward))
	}

	if c.MaterializeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid materialize interval %v: must be at least 1 second", c.MaterializeInterval))
	} else if c.MaterializeInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid materialize interval %v: must be at most 24 hours", c.MaterializeInterval))
	}

	if c.SheetsExportEnabled && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google spreadsheet ID is required when sheets export is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func parseWeekStart(s string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "su":
		return time.Sunday
	case "saturday", "sa":
		return time.Saturday
	default:
		return time.Monday
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
