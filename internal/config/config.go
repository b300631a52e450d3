package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP Server
	Port string

	// Local store
	SQLiteDBPath string

	// Remote store
	RemoteBackend   string
	RemoteURL       string
	RemoteAuthToken string
	StoreTimeout    time.Duration

	// Google Sheets remote
	GoogleSpreadsheetID      string
	GoogleCategoriesSheet    string
	GoogleTransactionsSheet  string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scheduler
	SyncInterval   time.Duration
	SyncRunTimeout time.Duration
	SessionUser    string

	// Snapshot cache
	CacheSize int
	CacheTTL  time.Duration

	// Import inbox and backups
	InboxDir     string
	BackupBucket string
	BackupDir    string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

var (
	validRemoteBackends = []string{"none", "libsql", "sqlite", "sheets", "memory"}
	validLogLevels      = []string{"debug", "info", "warn", "error"}
	validLogFormats     = []string{"text", "json"}
)

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("sqlite_db_path", "./data/budgetsync.db")

	v.SetDefault("remote_backend", "none")
	v.SetDefault("remote_database_url", "")
	v.SetDefault("remote_auth_token", "")
	v.SetDefault("store_timeout", 15*time.Second)

	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_categories_sheet", "Categories")
	v.SetDefault("google_transactions_sheet", "Transactions")
	v.SetDefault("google_service_account_file", "")
	v.SetDefault("google_service_account_json", "")

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "budgetsync")
	v.SetDefault("amqp_queue", "sync_requests")

	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("sync_run_timeout", 2*time.Minute)
	v.SetDefault("session_user", "")

	v.SetDefault("cache_size", 8)
	v.SetDefault("cache_ttl", 30*time.Minute)

	v.SetDefault("inbox_dir", "")
	v.SetDefault("backup_bucket", "")
	v.SetDefault("backup_dir", "./data/backups")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
}

// Load reads configuration from defaults, the optional file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
// Environment variable names are the upper-cased keys (SQLITE_DB_PATH,
// SYNC_INTERVAL, ...).
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:         v.GetString("port"),
		SQLiteDBPath: v.GetString("sqlite_db_path"),

		RemoteBackend:   strings.ToLower(v.GetString("remote_backend")),
		RemoteURL:       v.GetString("remote_database_url"),
		RemoteAuthToken: v.GetString("remote_auth_token"),
		StoreTimeout:    v.GetDuration("store_timeout"),

		GoogleSpreadsheetID:      v.GetString("google_spreadsheet_id"),
		GoogleCategoriesSheet:    v.GetString("google_categories_sheet"),
		GoogleTransactionsSheet:  v.GetString("google_transactions_sheet"),
		GoogleServiceAccountFile: v.GetString("google_service_account_file"),
		GoogleServiceAccountJSON: v.GetString("google_service_account_json"),

		AMQPURL:      v.GetString("amqp_url"),
		AMQPExchange: v.GetString("amqp_exchange"),
		AMQPQueue:    v.GetString("amqp_queue"),

		SyncInterval:   v.GetDuration("sync_interval"),
		SyncRunTimeout: v.GetDuration("sync_run_timeout"),
		SessionUser:    v.GetString("session_user"),

		CacheSize: v.GetInt("cache_size"),
		CacheTTL:  v.GetDuration("cache_ttl"),

		InboxDir:     v.GetString("inbox_dir"),
		BackupBucket: v.GetString("backup_bucket"),
		BackupDir:    v.GetString("backup_dir"),

		LogLevel:  strings.ToLower(v.GetString("log_level")),
		LogFormat: strings.ToLower(v.GetString("log_format")),
		LogFile:   v.GetString("log_file"),
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if !slices.Contains(validRemoteBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validRemoteBackends))
	}

	switch c.RemoteBackend {
	case "libsql":
		if c.RemoteURL == "" {
			errors = append(errors, "REMOTE_DATABASE_URL is required when using libsql backend")
		} else if u, err := url.Parse(c.RemoteURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid remote database URL: %v", err))
		} else if !slices.Contains([]string{"libsql", "https", "http", "wss", "ws", "file"}, u.Scheme) {
			errors = append(errors, fmt.Sprintf("invalid remote database URL scheme '%s'", u.Scheme))
		}
	case "sqlite":
		if c.RemoteURL == "" {
			errors = append(errors, "REMOTE_DATABASE_URL is required when using sqlite backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleCategoriesSheet == "" || c.GoogleTransactionsSheet == "" {
			errors = append(errors, "Google sheet names for categories and transactions cannot be empty")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
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

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncRunTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync run timeout %v: must be positive", c.SyncRunTimeout))
	}
	if c.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// HasRemote reports whether a remote store is configured.
func (c *Config) HasRemote() bool {
	return c.RemoteBackend != "" && c.RemoteBackend != "none"
}
