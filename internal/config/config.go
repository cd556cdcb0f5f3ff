package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize      = 100
	DefaultPollIntervalMs = 1000
	DefaultMaxParallel    = 10
	DefaultRetryBackoffS  = 30
	DefaultMaxAttempts    = 5
	DefaultNumProcesses   = 1
	DefaultQueryTimeoutS  = 30
	DefaultConnectTimoutS = 10
	DefaultHTTPHost       = "0.0.0.0"
	DefaultHTTPPort       = 8080
)

// Config is the typed tunable bundle for the dispatcher, populated from
// environment variables (and an optional app.env file) via viper.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`

	// Connection string, or its components (components take precedence).
	DSN        string `mapstructure:"DSN"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`

	Processes      int `mapstructure:"PROCESSES"`
	BatchSize      int `mapstructure:"BATCH_SIZE"`
	PollIntervalMs int `mapstructure:"POLL_INTERVAL_MS"`
	MaxParallel    int `mapstructure:"MAX_PARALLEL"`
	RetryBackoffS  int `mapstructure:"RETRY_BACKOFF_SECONDS"`
	MaxAttempts    int `mapstructure:"MAX_ATTEMPTS"`

	// HandlerTimeoutMs is 0 by default: unbounded handler execution,
	// matching the source's historical behavior (see spec §9). A
	// positive value bounds each handler invocation and treats expiry
	// as a retryable failure.
	HandlerTimeoutMs int `mapstructure:"HANDLER_TIMEOUT_MS"`

	QueryTimeoutS   int `mapstructure:"QUERY_TIMEOUT_SECONDS"`
	ConnectTimeoutS int `mapstructure:"CONNECT_TIMEOUT_SECONDS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	HTTPHost    string `mapstructure:"HTTP_HOST"`
	HTTPPort    int    `mapstructure:"HTTP_PORT"`
	DisableHTTP bool   `mapstructure:"DISABLE_HTTP"`

	DBMaxConns    int32 `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32 `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLife int   `mapstructure:"DB_MAX_CONN_LIFE_MINUTES"`
	DBMaxConnIdle int   `mapstructure:"DB_MAX_CONN_IDLE_MINUTES"`
}

// GetDSN returns the Postgres connection string, assembling it from
// components when DB_HOST is set, and folding in a connect_timeout
// query parameter when one isn't already present.
func (c *Config) GetDSN() string {
	dsn := c.DSN
	if c.DBHost != "" {
		encodedPassword := url.QueryEscape(c.DBPassword)
		sslMode := c.DBSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		port := c.DBPort
		if port == "" {
			port = "5432"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.DBUser, encodedPassword, c.DBHost, port, c.DBName, sslMode)
	}
	if dsn == "" {
		return dsn
	}

	timeout := c.ConnectTimeoutS
	if timeout <= 0 {
		timeout = DefaultConnectTimoutS
	}

	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Query().Get("connect_timeout") != "" {
		return dsn
	}
	q := parsed.Query()
	q.Set("connect_timeout", fmt.Sprintf("%d", timeout))
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// GetDBMaxConns returns max connections for the pool (default: 25)
func (c *Config) GetDBMaxConns() int32 {
	if c.DBMaxConns <= 0 {
		return 25
	}
	return c.DBMaxConns
}

// GetDBMinConns returns min connections for the pool (default: 5)
func (c *Config) GetDBMinConns() int32 {
	if c.DBMinConns <= 0 {
		return 5
	}
	return c.DBMinConns
}

// GetDBMaxConnLifetime returns max connection lifetime (default: 60 minutes)
func (c *Config) GetDBMaxConnLifetime() time.Duration {
	if c.DBMaxConnLife <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.DBMaxConnLife) * time.Minute
}

// GetDBMaxConnIdleTime returns max connection idle time (default: 15 minutes)
func (c *Config) GetDBMaxConnIdleTime() time.Duration {
	if c.DBMaxConnIdle <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.DBMaxConnIdle) * time.Minute
}

// GetPollInterval returns the poll interval as a time.Duration.
// If the configured value is invalid (non-positive), it returns the default value and logs a warning.
func (c *Config) GetPollInterval(logger *zap.Logger) time.Duration {
	if c.PollIntervalMs <= 0 {
		warn(logger, "POLL_INTERVAL_MS", c.PollIntervalMs, DefaultPollIntervalMs)
		return time.Duration(DefaultPollIntervalMs) * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// GetBatchSize returns the claim batch size.
// If the configured value is invalid (non-positive), it returns the default value and logs a warning.
func (c *Config) GetBatchSize(logger *zap.Logger) int {
	if c.BatchSize <= 0 {
		warn(logger, "BATCH_SIZE", c.BatchSize, DefaultBatchSize)
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetMaxParallel returns the per-process concurrent-handler width.
func (c *Config) GetMaxParallel(logger *zap.Logger) int {
	if c.MaxParallel <= 0 {
		warn(logger, "MAX_PARALLEL", c.MaxParallel, DefaultMaxParallel)
		return DefaultMaxParallel
	}
	return c.MaxParallel
}

// GetRetryBackoff returns the minimum delay before a retried row
// becomes eligible again.
func (c *Config) GetRetryBackoff(logger *zap.Logger) time.Duration {
	if c.RetryBackoffS <= 0 {
		warn(logger, "RETRY_BACKOFF_SECONDS", c.RetryBackoffS, DefaultRetryBackoffS)
		return time.Duration(DefaultRetryBackoffS) * time.Second
	}
	return time.Duration(c.RetryBackoffS) * time.Second
}

// GetMaxAttempts returns the bounded-retry budget per row.
func (c *Config) GetMaxAttempts(logger *zap.Logger) int {
	if c.MaxAttempts <= 0 {
		warn(logger, "MAX_ATTEMPTS", c.MaxAttempts, DefaultMaxAttempts)
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetProcesses returns the number of worker OS processes to supervise.
func (c *Config) GetProcesses(logger *zap.Logger) int {
	if c.Processes <= 0 {
		warn(logger, "PROCESSES", c.Processes, DefaultNumProcesses)
		return DefaultNumProcesses
	}
	return c.Processes
}

// GetHandlerTimeout returns the per-handler deadline, or 0 (unbounded)
// when unset. Unlike the other accessors, 0 is a valid, intentional
// value here — it is never silently replaced with a "default timeout."
func (c *Config) GetHandlerTimeout() time.Duration {
	if c.HandlerTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.HandlerTimeoutMs) * time.Millisecond
}

// GetQueryTimeout returns the per-statement SQL timeout.
func (c *Config) GetQueryTimeout(logger *zap.Logger) time.Duration {
	if c.QueryTimeoutS <= 0 {
		warn(logger, "QUERY_TIMEOUT_SECONDS", c.QueryTimeoutS, DefaultQueryTimeoutS)
		return time.Duration(DefaultQueryTimeoutS) * time.Second
	}
	return time.Duration(c.QueryTimeoutS) * time.Second
}

// GetHTTPHost returns the admin surface bind host.
func (c *Config) GetHTTPHost() string {
	if c.HTTPHost == "" {
		return DefaultHTTPHost
	}
	return c.HTTPHost
}

// GetHTTPPort returns the admin surface bind port.
func (c *Config) GetHTTPPort(logger *zap.Logger) int {
	if c.HTTPPort <= 0 {
		warn(logger, "HTTP_PORT", c.HTTPPort, DefaultHTTPPort)
		return DefaultHTTPPort
	}
	return c.HTTPPort
}

func warn(logger *zap.Logger, field string, configured, fallback int) {
	if logger == nil {
		return
	}
	logger.Warn("invalid config value, using default",
		zap.String("field", field),
		zap.Int("configured", configured),
		zap.Int("default", fallback))
}

// Load reads configuration from an optional app.env file in path and
// from the environment, env taking precedence as per viper convention.
func Load(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	for _, key := range []string{
		"ENVIRONMENT", "DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
		"DB_NAME", "DB_SSLMODE", "REDIS_ADDR", "PROCESSES", "BATCH_SIZE",
		"POLL_INTERVAL_MS", "MAX_PARALLEL", "RETRY_BACKOFF_SECONDS",
		"MAX_ATTEMPTS", "HANDLER_TIMEOUT_MS", "QUERY_TIMEOUT_SECONDS",
		"CONNECT_TIMEOUT_SECONDS", "LOG_LEVEL", "HTTP_HOST", "HTTP_PORT",
		"DISABLE_HTTP", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DB_MAX_CONN_LIFE_MINUTES", "DB_MAX_CONN_IDLE_MINUTES",
	} {
		_ = viper.BindEnv(key)
	}

	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil //nolint:ineffassign // intentional reset for env-only mode
	}

	err = viper.Unmarshal(&cfg)
	return
}
