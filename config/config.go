package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers understood by db.Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongodb"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the response cache lifetime.
func (s ServerConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string      `yaml:"driver"`
	DSN                    string      `yaml:"dsn"`
	MaxOpenConns           int         `yaml:"max_open_conns"`
	MaxIdleConns           int         `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int         `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool        `yaml:"log_sql"`
	Mongo                  MongoConfig `yaml:"mongo"`
}

// MongoConfig is used when Driver is "mongodb".
type MongoConfig struct {
	URI                   string `yaml:"uri"`
	Database              string `yaml:"database"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	MaxPoolSize           uint64 `yaml:"max_pool_size"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// AlertsConfig sets the thresholds that trigger restock alerts.
type AlertsConfig struct {
	FullnessThreshold int `yaml:"fullness_threshold"`
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

// AuditConfig drives the allocated-capacity auditor.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	Apply           bool          `yaml:"apply"`
}

// Load reads the configuration from the given path. A missing file is
// tolerated unless required is set; defaults and environment overrides
// are applied either way.
func Load(path string, required bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("database.mongo.uri is required for driver \"mongodb\"")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("SNACKTRACK_HTTP_PORT", cfg.Server.Port)
	cfg.Database.Driver = getEnv("SNACKTRACK_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("SNACKTRACK_DB_DSN", cfg.Database.DSN)
	cfg.Database.Mongo.URI = getEnv("SNACKTRACK_MONGO_URI", cfg.Database.Mongo.URI)
	cfg.Log.Level = getEnv("SNACKTRACK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = getEnvBool("SNACKTRACK_LOG_JSON", cfg.Log.JSON)
	cfg.Push.PublicKey = getEnv("SNACKTRACK_VAPID_PUBLIC_KEY", cfg.Push.PublicKey)
	cfg.Push.PrivateKey = getEnv("SNACKTRACK_VAPID_PRIVATE_KEY", cfg.Push.PrivateKey)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Database.Mongo.Database == "" {
		cfg.Database.Mongo.Database = "snacktrack"
	}
	if cfg.Database.Mongo.ConnectTimeoutSeconds <= 0 {
		cfg.Database.Mongo.ConnectTimeoutSeconds = 10
	}
	if cfg.Database.Mongo.MaxPoolSize == 0 {
		cfg.Database.Mongo.MaxPoolSize = 50
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Alerts.FullnessThreshold <= 0 {
		cfg.Alerts.FullnessThreshold = 25
	}
	if cfg.Alerts.LowStockThreshold < 0 {
		cfg.Alerts.LowStockThreshold = 0
	}

	if cfg.Audit.IntervalSeconds <= 0 {
		cfg.Audit.IntervalSeconds = 3600
	}
	cfg.Audit.Interval = time.Duration(cfg.Audit.IntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
