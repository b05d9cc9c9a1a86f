// Package config provides centralized configuration management for salesync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net/url"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// Driver is the backend: postgres or sqlite (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// SQLitePath is the database file used by the sqlite driver (default: salesync.db)
	SQLitePath string `env:"SQLITE_PATH" default:"salesync.db"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	// When unset, it is assembled from the POSTGRES_* variables.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `env:"POSTGRES_HOST" default:"localhost"`
	Port     int    `env:"POSTGRES_PORT" default:"5432"`
	Name     string `env:"POSTGRES_DB"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds CSV ingestion settings.
type IngestConfig struct {
	// MaxFileSize is the maximum accepted input size in bytes (default: 100MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// HeaderSearchRows is how many leading rows are scanned for the header (default: 20)
	HeaderSearchRows int `env:"INGEST_HEADER_SEARCH_ROWS" default:"20"`

	// FBASource is the source name whose rows may omit the customer email
	FBASource string `env:"INGEST_FBA_SOURCE" default:"Amazon FBA"`

	// SyntheticDomain is the domain used for placeholder customer emails
	SyntheticDomain string `env:"INGEST_SYNTHETIC_DOMAIN" default:"FBA-amazon.com"`

	// BatchSize is the number of orders committed per transaction by the
	// combined-order importer (default: 50)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"50"`
}

// MetricsConfig holds the optional metrics/status HTTP listener.
type MetricsConfig struct {
	// Addr enables the listener when non-empty, e.g. ":9090"
	Addr string `env:"METRICS_ADDR"`

	// ReadTimeout is the maximum duration for reading a request (default: 5s)
	ReadTimeout time.Duration `env:"METRICS_READ_TIMEOUT" default:"5s"`

	// ShutdownTimeout bounds graceful shutdown of the listener (default: 5s)
	ShutdownTimeout time.Duration `env:"METRICS_SHUTDOWN_TIMEOUT" default:"5s"`

	// APIKeys, when set, are required in X-API-Key for /status.
	// Comma-separated list.
	APIKeys []string `env:"METRICS_API_KEYS"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are
	// believed. Comma-separated list.
	TrustedProxies []string `env:"METRICS_TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// DSN returns the PostgreSQL connection string. An explicit URL wins;
// otherwise one is assembled from the discrete POSTGRES_* settings.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + itoa(c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
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
