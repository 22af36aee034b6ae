package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Business     BusinessConfig     `yaml:"business"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Log          LogConfig          `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	OperatorToken   string  `yaml:"operator_token"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
	LogQueries             bool   `yaml:"log_queries"`
}

// BusinessConfig describes the venue's operating day.
type BusinessConfig struct {
	Timezone              string `yaml:"timezone"`
	Open                  string `yaml:"open"`
	Close                 string `yaml:"close"`
	SlotMinutes           int    `yaml:"slot_minutes"`
	AverageSessionMinutes int    `yaml:"average_session_minutes"`
	BookingHorizonDays    int    `yaml:"booking_horizon_days"`
}

// HousekeepingConfig controls the periodic queue sweep.
type HousekeepingConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env string `yaml:"env"` // production or development
}

// Load reads the configuration from the given path. Values from a .env file
// in the working directory, or from the process environment, override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not read .env: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := defaultConfig()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// defaultConfig holds the defaults of settings where an explicit zero has a
// meaning of its own. Keys missing from the file keep these values.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			RateLimitPerSec: 10, // 0 disables rate limiting
			CacheTTLSeconds: 15, // 0 disables response caching
		},
		Business: BusinessConfig{
			BookingHorizonDays: 14, // 0 accepts bookings on any future date
		},
	}
}

func applyEnv(cfg *Config) error {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if token := os.Getenv("OPERATOR_TOKEN"); token != "" {
		cfg.Server.OperatorToken = token
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	defaults := defaultConfig()
	if cfg.Server.RateLimitPerSec < 0 {
		cfg.Server.RateLimitPerSec = defaults.Server.RateLimitPerSec
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = defaults.Server.CacheTTLSeconds
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Business.Timezone == "" {
		cfg.Business.Timezone = "Asia/Bangkok"
	}
	if cfg.Business.Open == "" {
		cfg.Business.Open = "10:00"
	}
	if cfg.Business.Close == "" {
		cfg.Business.Close = "22:00"
	}
	if cfg.Business.SlotMinutes <= 0 {
		cfg.Business.SlotMinutes = 30
	}
	if cfg.Business.AverageSessionMinutes <= 0 {
		cfg.Business.AverageSessionMinutes = 30
	}
	if cfg.Business.BookingHorizonDays < 0 {
		cfg.Business.BookingHorizonDays = defaults.Business.BookingHorizonDays
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 100
	}

	if cfg.Housekeeping.IntervalSeconds <= 0 {
		cfg.Housekeeping.IntervalSeconds = 900
	}
	cfg.Housekeeping.Interval = time.Duration(cfg.Housekeeping.IntervalSeconds) * time.Second

	if cfg.Log.Env == "" {
		cfg.Log.Env = "production"
	}
}
