// Package config provides configuration management for faultline using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultCacheTTL          = 5 * time.Minute
	defaultQueueWorkers      = 2
	defaultQueuePollInterval = time.Second
	defaultQueueMaxAttempts  = 3
	defaultRetentionDays     = 3
	defaultStackLockHold     = 10 * time.Second
	defaultStackLockAcquire  = 5 * time.Second
	defaultMaxFieldLength    = 2000
	defaultWebhookTimeout    = 30 * time.Second
	defaultWebhookConcurrent = 10
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// CacheConfig holds cache and distributed lock provider configuration.
// The memory provider is single-node; redis enables multi-node deployments
// where stack creation races across processes.
type CacheConfig struct {
	Provider  string        `mapstructure:"provider"` // memory, redis
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// QueueConfig holds durable work queue configuration.
type QueueConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// PipelineConfig holds event pipeline configuration.
type PipelineConfig struct {
	// RetentionDays is the default event retention window when an
	// organization has none configured.
	RetentionDays int `mapstructure:"retention_days"`
	// StackLockHold is the lease duration for the per-fingerprint
	// stack-creation lock.
	StackLockHold time.Duration `mapstructure:"stack_lock_hold"`
	// StackLockAcquire is how long stack creation waits for the lock
	// before erroring the affected contexts.
	StackLockAcquire time.Duration `mapstructure:"stack_lock_acquire"`
	// MaxFieldLength caps event Message/Source length.
	MaxFieldLength int `mapstructure:"max_field_length"`
	// WebhookTimeout bounds a single webhook delivery attempt.
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	// WebhookConcurrency bounds parallel webhook deliveries per worker.
	WebhookConcurrency int `mapstructure:"webhook_concurrency"`
}

// SchedulerConfig holds background maintenance configuration.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RetentionSweepCron is a cron expression for the event retention sweep.
	RetentionSweepCron string `mapstructure:"retention_sweep_cron"`
	// QueueCleanupCron is a cron expression for completed work item cleanup.
	QueueCleanupCron string `mapstructure:"queue_cleanup_cron"`
	// QueueCleanupAge is how long completed work items are kept.
	QueueCleanupAge time.Duration `mapstructure:"queue_cleanup_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with FAULTLINE_ and use underscores for
// nesting. Example: FAULTLINE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/faultline")
		v.AddConfigPath("$HOME/.faultline")
	}

	v.SetEnvPrefix("FAULTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "faultline.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Cache defaults
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", defaultCacheTTL)

	// Queue defaults
	v.SetDefault("queue.workers", defaultQueueWorkers)
	v.SetDefault("queue.poll_interval", defaultQueuePollInterval)
	v.SetDefault("queue.max_attempts", defaultQueueMaxAttempts)

	// Pipeline defaults
	v.SetDefault("pipeline.retention_days", defaultRetentionDays)
	v.SetDefault("pipeline.stack_lock_hold", defaultStackLockHold)
	v.SetDefault("pipeline.stack_lock_acquire", defaultStackLockAcquire)
	v.SetDefault("pipeline.max_field_length", defaultMaxFieldLength)
	v.SetDefault("pipeline.webhook_timeout", defaultWebhookTimeout)
	v.SetDefault("pipeline.webhook_concurrency", defaultWebhookConcurrent)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.retention_sweep_cron", "0 30 3 * * *")
	v.SetDefault("scheduler.queue_cleanup_cron", "0 0 4 * * *")
	v.SetDefault("scheduler.queue_cleanup_age", 7*24*time.Hour)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}

	switch c.Cache.Provider {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache provider: %s", c.Cache.Provider)
	}
	if c.Cache.Provider == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache redis_addr is required for the redis provider")
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be at least 1, got %d", c.Queue.Workers)
	}
	if c.Queue.PollInterval <= 0 {
		return errors.New("queue poll_interval must be positive")
	}

	if c.Pipeline.RetentionDays < 1 {
		return fmt.Errorf("pipeline retention_days must be at least 1, got %d", c.Pipeline.RetentionDays)
	}
	if c.Pipeline.StackLockHold <= 0 || c.Pipeline.StackLockAcquire <= 0 {
		return errors.New("pipeline stack lock durations must be positive")
	}
	if c.Pipeline.MaxFieldLength < 1 {
		return fmt.Errorf("pipeline max_field_length must be at least 1, got %d", c.Pipeline.MaxFieldLength)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}
