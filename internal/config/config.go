package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"   validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"      validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"       validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue"      validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"     validate:"required"`
	Scanner   ScannerConfig   `mapstructure:"scanner"    validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains connection settings for the shared counter store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"   validate:"gte=0"`
}

// AuthConfig contains all authentication settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`

	// TokenLifetime is how long issued access tokens stay valid.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"required"`
}

// QueueConfig contains settings for the in-process job queue.
type QueueConfig struct {
	// Size is the buffer capacity of the job channel. When the buffer is
	// full, enqueued jobs stay persisted and the sweeper re-offers them
	// instead of blocking producers.
	Size int `mapstructure:"size" validate:"required,gt=0"`

	// SweepInterval is how often jobs still marked queued in the store are
	// re-offered to the channel. It also serves as the minimum age a job
	// must reach before being re-offered.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}

// WorkerConfig contains settings for the job worker pool.
// Retry count, backoff curve and the dead-letter threshold are explicit
// configuration here rather than implicit queue behavior.
type WorkerConfig struct {
	// Count determines how many concurrent workers consume jobs.
	Count int `mapstructure:"count" validate:"required,gt=0"`

	// MaxAttempts bounds retries; a job exceeding it is dead-lettered.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it, capped at BackoffMax.
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"required"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"  validate:"required"`

	// AttemptTimeout bounds a single processing attempt. A timed-out
	// attempt counts as a failure for retry accounting.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"required"`
}

// ScannerConfig contains settings for the overdue task scanner.
type ScannerConfig struct {
	// Interval is the fixed period between scans.
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}

// RateLimitConfig contains settings for request admission control.
type RateLimitConfig struct {
	// Limit is the number of requests allowed per window per caller and
	// operation.
	Limit int `mapstructure:"limit" validate:"required,gt=0"`

	// Window is the fixed counting window. The window starts on the first
	// request and expires unconditionally after this duration.
	Window time.Duration `mapstructure:"window" validate:"required"`

	// FailOpen decides what happens when the counter store is unreachable:
	// true admits the request, false denies it. There is no silent default;
	// deployments must choose.
	FailOpen bool `mapstructure:"fail_open"`
}
