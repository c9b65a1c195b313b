package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Database holds the connection settings of the optional value history store.
type Database struct {
	DBEnabled  bool   `mapstructure:"DB_ENABLED"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBPort     string `mapstructure:"DB_PORT"`
}

type Server struct {
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`
	TLSCertFile   string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile    string `mapstructure:"TLS_KEY_FILE"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
}

// Polling drives the scheduler, the poller workers and the health monitor.
type Polling struct {
	DevicesFile                string `mapstructure:"DEVICES_FILE"`
	PollingWorkerConcurrency   int    `mapstructure:"POLLING_WORKER_CONCURRENCY"`
	SchedulerTickIntervalMs    int    `mapstructure:"SCHEDULER_TICK_INTERVAL_MS"`
	InternalQueueSize          int    `mapstructure:"INTERNAL_QUEUE_SIZE"`
	HealthFailureWindowSeconds int    `mapstructure:"HEALTH_FAILURE_WINDOW_SECONDS"`
	HealthFailureThreshold     int    `mapstructure:"HEALTH_FAILURE_THRESHOLD"`
}

type Security struct {
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	EncryptionKey        string `mapstructure:"ENCRYPTION_KEY"` // 64 hex digits, AES key for encrypted_password
	AdminUser            string `mapstructure:"ADMIN_USER"`
	AdminHash            string `mapstructure:"ADMIN_HASH"` // bcrypt
	SessionDurationHours int    `mapstructure:"SESSION_DURATION_HOURS"`
}

type History struct {
	HistoryDefaultLimit         int `mapstructure:"HISTORY_DEFAULT_LIMIT"`
	HistoryDefaultLookbackHours int `mapstructure:"HISTORY_DEFAULT_LOOKBACK_HOURS"`
	HistoryRetentionHours       int `mapstructure:"HISTORY_RETENTION_HOURS"` // 0 keeps samples forever
}

// Config is the daemon configuration. Every key is flat so it can be set
// from app.yaml, .env or the environment alike.
type Config struct {
	Database `mapstructure:",squash"`
	Server   `mapstructure:",squash"`
	Polling  `mapstructure:",squash"`
	Security `mapstructure:",squash"`
	History  `mapstructure:",squash"`
}

var defaults = map[string]any{
	"DB_ENABLED":  false,
	"DB_HOST":     "localhost",
	"DB_USER":     "generichttp",
	"DB_PASSWORD": "generichttp",
	"DB_NAME":     "generichttp",
	"DB_PORT":     "5432",

	"SERVER_ADDRESS": ":8080",
	"TLS_CERT_FILE":  "",
	"TLS_KEY_FILE":   "",
	"LOG_LEVEL":      "info",

	"DEVICES_FILE":                  "devices.yaml",
	"POLLING_WORKER_CONCURRENCY":    5,
	"SCHEDULER_TICK_INTERVAL_MS":    500,
	"INTERNAL_QUEUE_SIZE":           100,
	"HEALTH_FAILURE_WINDOW_SECONDS": 60,
	"HEALTH_FAILURE_THRESHOLD":      3,

	"JWT_SECRET":             "default-insecure-secret-change-me",
	"ENCRYPTION_KEY":         "1234567890123456789012345678901212345678901234567890123456789012",
	"ADMIN_USER":             "admin",
	"ADMIN_HASH":             "$2a$10$BST/uOdLLXUyqO4fN.b9cuwVwoXEJWWFzpc4iirHiu3GcgbuJqtdu",
	"SESSION_DURATION_HOURS": 24,

	"HISTORY_DEFAULT_LIMIT":          100,
	"HISTORY_DEFAULT_LOOKBACK_HOURS": 1,
	"HISTORY_RETENTION_HOURS":        168,
}

// LoadConfig reads the configuration found in path, lowest priority first:
// built-in defaults, app.yaml, .env, then the process environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, err
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil && !isNotFound(err) {
		slog.Warn("Ignoring unreadable .env file", "component", "Config", "error", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown names fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
