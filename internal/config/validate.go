package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// builtinStrategies are registered by loader.DefaultRegistry.
var builtinStrategies = map[string]bool{"select": true, "bulk": true}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Loader.validate(result)
	c.Demo.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL:
		if d.DSN == "" {
			if strings.TrimSpace(d.Host) == "" {
				result.addError("database.host", "host is required when no DSN is set", "set database.host or database.dsn")
			}
			if d.Port < 1 || d.Port > 65535 {
				result.addError("database.port", fmt.Sprintf("invalid port %d", d.Port), "port must be between 1 and 65535")
			}
			if d.Database == "" {
				result.addWarning("database.database", "no database selected", "queries must use qualified table names")
			}
		}
	case DriverSQLite:
		if d.TLSMode != "" {
			result.addWarning("database.tls_mode", "TLS mode is ignored for sqlite", "")
		}
	default:
		result.addError("database.driver", fmt.Sprintf("unsupported driver %q", d.Driver), "valid values are: mysql, sqlite")
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle", "max_idle exceeds max_open", "idle connections are capped at max_open")
	}
	if d.Pool.MaxLifetime < 0 {
		result.addError("database.pool.max_lifetime", "max_lifetime cannot be negative", "")
	}
}

func (l *LoaderConfig) validate(result *ValidationResult) {
	name := strings.TrimSpace(l.DefaultStrategy)
	if name == "" {
		result.addError("loader.default_strategy", "default strategy is required", "valid built-in values are: select, bulk")
		return
	}
	if !builtinStrategies[name] {
		result.addWarning("loader.default_strategy", fmt.Sprintf("%q is not a built-in strategy", name),
			"it must be registered before the loaders are configured")
	}
}

func (d *DemoConfig) validate(result *ValidationResult) {
	for _, name := range d.Strategies {
		if !builtinStrategies[name] {
			result.addError("demo.strategies", fmt.Sprintf("unknown strategy %q", name), "valid values are: select, bulk")
		}
	}
	if len(d.Relationships) == 0 {
		result.addError("demo.relationships", "at least one relationship is required", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("invalid sample ratio %v", o.TraceSampleRatio),
			"must be between 0.0 and 1.0")
	}

	if o.MetricsEnabled {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			result.addError("observability.metrics_addr", fmt.Sprintf("invalid listen address %q", o.MetricsAddr),
				"use host:port or :port")
		}
	}

	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}

	if o.Timeout < 0 {
		result.addError(prefix+".timeout", "timeout cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
