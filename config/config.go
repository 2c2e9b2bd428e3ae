package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFilePath string `yaml:"log_file"`
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	SQLitePragmasEnabled bool   `yaml:"sqlite_pragmas_enabled"`
	SQLiteBusyTimeoutMS  int    `yaml:"sqlite_busy_timeout_ms"`
	SQLiteJournalMode    string `yaml:"sqlite_journal_mode"`
	SQLiteSynchronous    string `yaml:"sqlite_synchronous"`
	SQLiteMaxOpenConns   int    `yaml:"sqlite_max_open_conns"`
	SQLiteMaxIdleConns   int    `yaml:"sqlite_max_idle_conns"`
	SQLiteConnMaxIdleSec int    `yaml:"sqlite_conn_max_idle_seconds"`
	SQLiteConnMaxLifeSec int    `yaml:"sqlite_conn_max_lifetime_seconds"`

	// Error telemetry
	RetentionDays       int      `yaml:"retention_days"`
	RetentionSchedule   string   `yaml:"retention_schedule"`
	CleanupAPIKey       string   `yaml:"cleanup_api_key"`
	CleanupAllowCIDRs   []string `yaml:"cleanup_allow_cidrs"`
	AlertThreshold      float64  `yaml:"alert_threshold"`
	StatsDefaultMinutes int      `yaml:"stats_default_minutes"`
	StatsMaxMinutes     int      `yaml:"stats_max_minutes"`

	// Timeouts
	RequestTimeoutSeconds  int `yaml:"request_timeout_seconds"`
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	// Client side
	CLIServer            string `yaml:"cli_server"`
	ReportTimeoutSeconds int    `yaml:"report_timeout_seconds"`
}

// Settings is the global configuration instance populated from the
// environment, an optional YAML file and flags.
var Settings *Config

func init() {
	Settings = Defaults()
	applyEnv(Settings)
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel:    "INFO",
		LogFormat:   "text",
		LogFilePath: "",
		Port:        8787,
		DatabaseURL: "faultline.db",

		SQLitePragmasEnabled: true,
		SQLiteBusyTimeoutMS:  5000,
		SQLiteJournalMode:    "WAL",
		SQLiteSynchronous:    "NORMAL",
		SQLiteMaxOpenConns:   1,
		SQLiteMaxIdleConns:   1,
		SQLiteConnMaxIdleSec: 300,
		SQLiteConnMaxLifeSec: 0,

		RetentionDays:       30,
		RetentionSchedule:   "@daily",
		AlertThreshold:      1.0,
		StatsDefaultMinutes: 60,
		StatsMaxMinutes:     1440,

		RequestTimeoutSeconds:  10,
		WriteTimeoutSeconds:    5,
		ShutdownTimeoutSeconds: 5,

		CLIServer:            "http://localhost:8787",
		ReportTimeoutSeconds: 5,
	}
}

func applyEnv(c *Config) {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFilePath = getEnv("LOG_FILE", c.LogFilePath)
	c.Port = getEnvInt("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.SQLitePragmasEnabled = getEnvBool("SQLITE_PRAGMAS_ENABLED", c.SQLitePragmasEnabled)
	c.SQLiteBusyTimeoutMS = getEnvInt("SQLITE_BUSY_TIMEOUT_MS", c.SQLiteBusyTimeoutMS)
	c.SQLiteJournalMode = getEnv("SQLITE_JOURNAL_MODE", c.SQLiteJournalMode)
	c.SQLiteSynchronous = getEnv("SQLITE_SYNCHRONOUS", c.SQLiteSynchronous)
	c.SQLiteMaxOpenConns = getEnvInt("SQLITE_MAX_OPEN_CONNS", c.SQLiteMaxOpenConns)
	c.SQLiteMaxIdleConns = getEnvInt("SQLITE_MAX_IDLE_CONNS", c.SQLiteMaxIdleConns)
	c.SQLiteConnMaxIdleSec = getEnvInt("SQLITE_CONN_MAX_IDLE_SECONDS", c.SQLiteConnMaxIdleSec)
	c.SQLiteConnMaxLifeSec = getEnvInt("SQLITE_CONN_MAX_LIFETIME_SECONDS", c.SQLiteConnMaxLifeSec)

	c.RetentionDays = getEnvInt("ERROR_RETENTION_DAYS", c.RetentionDays)
	c.RetentionSchedule = getEnv("RETENTION_SCHEDULE", c.RetentionSchedule)
	c.CleanupAPIKey = getEnv("ERROR_CLEANUP_API_KEY", c.CleanupAPIKey)
	c.CleanupAllowCIDRs = getEnvList("CLEANUP_ALLOW_CIDRS", c.CleanupAllowCIDRs)
	c.AlertThreshold = getEnvFloat("ALERT_THRESHOLD", c.AlertThreshold)
	c.StatsDefaultMinutes = getEnvInt("STATS_DEFAULT_MINUTES", c.StatsDefaultMinutes)
	c.StatsMaxMinutes = getEnvInt("STATS_MAX_MINUTES", c.StatsMaxMinutes)

	c.RequestTimeoutSeconds = getEnvInt("REQUEST_TIMEOUT_SECONDS", c.RequestTimeoutSeconds)
	c.WriteTimeoutSeconds = getEnvInt("WRITE_TIMEOUT_SECONDS", c.WriteTimeoutSeconds)
	c.ShutdownTimeoutSeconds = getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", c.ShutdownTimeoutSeconds)

	c.CLIServer = getEnv("CLI_SERVER", c.CLIServer)
	c.ReportTimeoutSeconds = getEnvInt("REPORT_TIMEOUT_SECONDS", c.ReportTimeoutSeconds)
}

// LoadFile overlays a YAML file onto Settings. Environment variables still
// win over values from the file. An empty path is a no-op.
func LoadFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := *Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	*Settings = cfg
	return nil
}

// BindServerFlags registers flags for the serve command directly onto Settings.
func BindServerFlags(fs *pflag.FlagSet) {
	fs.IntVar(&Settings.Port, "port", Settings.Port, "HTTP server port (overrides PORT)")
	fs.StringVar(&Settings.DatabaseURL, "db", Settings.DatabaseURL, "SQLite database path (overrides DATABASE_URL)")
	fs.BoolVar(&Settings.SQLitePragmasEnabled, "sqlite-pragmas", Settings.SQLitePragmasEnabled, "Enable SQLite PRAGMAs (overrides SQLITE_PRAGMAS_ENABLED)")
	fs.IntVar(&Settings.SQLiteBusyTimeoutMS, "sqlite-busy-timeout-ms", Settings.SQLiteBusyTimeoutMS, "SQLite busy_timeout in milliseconds")
	fs.StringVar(&Settings.SQLiteJournalMode, "sqlite-journal-mode", Settings.SQLiteJournalMode, "SQLite journal_mode")
	fs.StringVar(&Settings.SQLiteSynchronous, "sqlite-synchronous", Settings.SQLiteSynchronous, "SQLite synchronous")
	fs.IntVar(&Settings.SQLiteMaxOpenConns, "sqlite-max-open-conns", Settings.SQLiteMaxOpenConns, "SQLite MaxOpenConns")
	fs.IntVar(&Settings.RetentionDays, "retention-days", Settings.RetentionDays, "Days to keep error records (overrides ERROR_RETENTION_DAYS)")
	fs.StringVar(&Settings.RetentionSchedule, "retention-schedule", Settings.RetentionSchedule, "Cron spec for retention cleanup, empty disables (overrides RETENTION_SCHEDULE)")
	fs.Float64Var(&Settings.AlertThreshold, "alert-threshold", Settings.AlertThreshold, "Errors per minute that trip the alert flag (overrides ALERT_THRESHOLD)")
	fs.StringSliceVar(&Settings.CleanupAllowCIDRs, "cleanup-allow", Settings.CleanupAllowCIDRs, "CIDRs allowed to call the cleanup endpoint (overrides CLEANUP_ALLOW_CIDRS)")
}

// BindLogFlags registers logging flags shared by all commands.
func BindLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&Settings.LogLevel, "log-level", Settings.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL)")
	fs.StringVar(&Settings.LogFormat, "log-format", Settings.LogFormat, "Log format: text or json (overrides LOG_FORMAT)")
	fs.StringVar(&Settings.LogFilePath, "log-file", Settings.LogFilePath, "Log file path, stdout when empty (overrides LOG_FILE)")
}

// BindClientFlags registers flags for commands that talk to a running server.
func BindClientFlags(fs *pflag.FlagSet) {
	fs.StringVar(&Settings.CLIServer, "server", Settings.CLIServer, "Server URL (overrides CLI_SERVER)")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
