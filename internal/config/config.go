// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Loader        LoaderConfig        `mapstructure:"loader"`
	Demo          DemoConfig          `mapstructure:"demo"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Driver       string     `mapstructure:"driver"` // mysql or sqlite
	DSN          string     `mapstructure:"dsn"`
	Host         string     `mapstructure:"host"`
	Port         int        `mapstructure:"port"`
	User         string     `mapstructure:"user"`
	Password     string     `mapstructure:"password"`
	PasswordFile string     `mapstructure:"password_file"`
	Database     string     `mapstructure:"database"`
	TLSMode      string     `mapstructure:"tls_mode"` // MySQL tls parameter: true, false, skip-verify, preferred
	Pool         PoolConfig `mapstructure:"pool"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// LoaderConfig selects the loading strategy for relationships that do not name one.
type LoaderConfig struct {
	DefaultStrategy string `mapstructure:"default_strategy"`
}

// DemoConfig drives the bulkload-demo command.
type DemoConfig struct {
	Seed          bool     `mapstructure:"seed"`
	Strategies    []string `mapstructure:"strategies"`
	Relationships []string `mapstructure:"relationships"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`
	OTLP             OTLPConfig    `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCAFile   string            `mapstructure:"tls_ca_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
}

// ConnectionString returns the driver DSN. An explicit DSN wins; otherwise
// MySQL DSNs are assembled from the discrete fields and SQLite uses the
// database field as its file name.
func (d *DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == DriverSQLite {
		if d.Database == "" {
			return ":memory:"
		}
		return d.Database
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	cfg.DBName = d.Database
	cfg.ParseTime = true
	if d.TLSMode != "" {
		cfg.TLSConfig = d.TLSMode
	}
	return cfg.FormatDSN()
}
