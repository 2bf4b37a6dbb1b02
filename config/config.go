package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"event-checkin-backend/internal/logger"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Attendee   AttendeeConfig   `yaml:"attendee"`
	PII        PIIConfig        `yaml:"pii"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Roster     RosterConfig     `yaml:"roster"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	Debug           bool    `yaml:"debug"`
	ReaderHeader    string  `yaml:"reader_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LogConfig controls the rotating log file. An empty File logs to stdout only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AttendeeConfig holds defaults applied to newly registered attendees.
type AttendeeConfig struct {
	DefaultMealCredits int `yaml:"default_meal_credits"`
}

// PIIConfig holds the base64 encoded 32 byte key used to seal contact details.
type PIIConfig struct {
	Key string `yaml:"key"`
}

// PushConfig holds the VAPID keys for staff alert push notifications.
type PushConfig struct {
	PublicKey    string   `yaml:"vapid_public_key"`
	PrivateKey   string   `yaml:"vapid_private_key"`
	Subject      string   `yaml:"subject"`
	TTL          int      `yaml:"ttl"`
	AlertReasons []string `yaml:"alert_reasons"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// RosterConfig describes the upstream roster used by the import-roster command.
type RosterConfig struct {
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	PageSize  int               `yaml:"page_size"`
	HTTPProxy string            `yaml:"http_proxy"`
	Payload   map[string]any    `yaml:"payload"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in every unset field so a partial file still boots.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:event_db.sqlite?_busy_timeout=5000&_txlock=immediate"
	}

	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}

	if cfg.Attendee.DefaultMealCredits < 0 {
		logger.Log().Warn("attendee.default_meal_credits is negative; defaulting to 1")
		cfg.Attendee.DefaultMealCredits = 1
	}
	if cfg.Attendee.DefaultMealCredits == 0 {
		cfg.Attendee.DefaultMealCredits = 1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.AlertReasons == nil {
		cfg.Push.AlertReasons = []string{"UNKNOWN_TAG"}
	}

	if cfg.WorkerPool.Size <= 0 {
		logger.Log().Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Roster.PageSize <= 0 {
		cfg.Roster.PageSize = 100
	}
}
