// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Jobs     JobConfig
	Remote   RemoteConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// JobConfig holds batch job processing settings.
type JobConfig struct {
	// BatchSize is the number of rows pulled from the row source per batch call (default: 100)
	BatchSize int `env:"JOB_BATCH_SIZE" default:"100"`

	// ExportTTL is how long an export session stays alive between batch calls (default: 1h)
	ExportTTL time.Duration `env:"JOB_EXPORT_TTL" default:"1h"`

	// ImportTTL is how long an import session stays alive. Longer than exports
	// because a large upload may sit paused mid-mapping (default: 24h)
	ImportTTL time.Duration `env:"JOB_IMPORT_TTL" default:"24h"`

	// ErrorsCapacity is the maximum per-operation error entries retained (default: 50)
	ErrorsCapacity int `env:"JOB_ERRORS_CAPACITY" default:"50"`

	// HistoryCapacity is the maximum past-run summaries retained per operation (default: 20)
	HistoryCapacity int `env:"JOB_HISTORY_CAPACITY" default:"20"`

	// ExportsDir is where generated CSV files are written (default: ./data/exports)
	ExportsDir string `env:"JOB_EXPORTS_DIR" default:"data/exports"`

	// UploadsDir is where uploaded import files are stored (default: ./data/uploads)
	UploadsDir string `env:"JOB_UPLOADS_DIR" default:"data/uploads"`

	// MaxUploadSize is the maximum allowed import file size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"JOB_MAX_UPLOAD_SIZE" default:"104857600"`

	// SweepInterval is how often expired sessions and orphaned files are reclaimed (default: 15m)
	SweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL" default:"15m"`
}

// RemoteConfig holds settings for the external sync API client.
type RemoteConfig struct {
	// BaseURL is the root of the external paginated API (empty disables sync operations)
	BaseURL string `env:"REMOTE_BASE_URL"`

	// APIKey is sent as a bearer token on every request
	APIKey string `env:"REMOTE_API_KEY"`

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration `env:"REMOTE_TIMEOUT" default:"30s"`

	// PageSize is the page size requested from the remote API (default: 100)
	PageSize int `env:"REMOTE_PAGE_SIZE" default:"100"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
