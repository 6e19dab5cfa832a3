// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultMaxRequestSize is the default maximum request body size (1MB).
	DefaultMaxRequestSize = 1 << 20

	// DefaultMaxBreadcrumbs is the default number of breadcrumbs kept per scope.
	DefaultMaxBreadcrumbs = 100

	// DefaultRedisStream is the default stream the redis sink appends to.
	DefaultRedisStream = "scopehub:events"

	// DefaultRedisMaxLen is the default approximate stream length cap.
	DefaultRedisMaxLen = 10000

	// DefaultHTTPSinkMaxAttempts is the default number of delivery attempts.
	DefaultHTTPSinkMaxAttempts = 3

	// DefaultHTTPSinkMultiplier is the default backoff growth factor.
	DefaultHTTPSinkMultiplier = 2.0

	// DefaultHTTPSinkMaxFailures is the default failures before the circuit opens.
	DefaultHTTPSinkMaxFailures = 5

	// DefaultHTTPSinkHalfOpenLimit is the default successes to close the circuit.
	DefaultHTTPSinkHalfOpenLimit = 2

	// DefaultLogFileMaxSizeMB is the default max log file size in megabytes.
	DefaultLogFileMaxSizeMB = 100

	// DefaultLogFileMaxBackups is the default number of old log files to retain.
	DefaultLogFileMaxBackups = 3

	// DefaultLogFileMaxAgeDays is the default max days to retain old log files.
	DefaultLogFileMaxAgeDays = 28
)

// envPrefix marks environment variables read by Load.
const envPrefix = "APP_"

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Scope     ScopeConfig     `koanf:"scope"     validate:"required"`
	Sinks     SinksConfig     `koanf:"sinks"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ScopeConfig controls the scope stack.
type ScopeConfig struct {
	// GlobalMode shares one stack across every request and disables pushes.
	GlobalMode     bool   `koanf:"global_mode"`
	MaxBreadcrumbs int    `koanf:"max_breadcrumbs" validate:"required,min=1,max=1000"`
	Release        string `koanf:"release"`
	Debug          bool   `koanf:"debug"`
}

// SinksConfig selects where captured events go. With every sink disabled,
// events are dropped.
type SinksConfig struct {
	Log   LogSinkConfig   `koanf:"log"`
	Redis RedisSinkConfig `koanf:"redis"`
	HTTP  HTTPSinkConfig  `koanf:"http"`
}

// LogSinkConfig configures the structured-log sink.
type LogSinkConfig struct {
	Enabled bool `koanf:"enabled"`
}

// RedisSinkConfig configures the redis stream sink.
type RedisSinkConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"     validate:"required_if=Enabled true,omitempty,hostname_port"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"       validate:"min=0,max=15"`
	Stream   string        `koanf:"stream"   validate:"required_if=Enabled true"`
	MaxLen   int64         `koanf:"max_len"  validate:"omitempty,min=1"`
	Timeout  time.Duration `koanf:"timeout"  validate:"omitempty,min=10ms"`
}

// HTTPSinkConfig configures forwarding events to an HTTP ingest endpoint.
type HTTPSinkConfig struct {
	Enabled        bool                 `koanf:"enabled"`
	URL            string               `koanf:"url"             validate:"required_if=Enabled true,omitempty,url"`
	Token          string               `koanf:"token"`
	Timeout        time.Duration        `koanf:"timeout"         validate:"omitempty,min=10ms"`
	Retry          RetryConfig          `koanf:"retry"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// RetryConfig contains retry settings for outbound deliveries.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"omitempty,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"omitempty,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"omitempty,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"omitempty,min=1.1,max=10"`
}

// CircuitBreakerConfig contains circuit breaker settings for outbound deliveries.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"omitempty,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"omitempty,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"omitempty,min=1"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "scope-hub",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "scope-hub",
		"telemetry.sampling_rate": 1.0,

		"scope.global_mode":     false,
		"scope.max_breadcrumbs": DefaultMaxBreadcrumbs,
		"scope.release":         "",
		"scope.debug":           false,

		"sinks.log.enabled":    true,
		"sinks.redis.enabled":  false,
		"sinks.redis.addr":     "localhost:6379",
		"sinks.redis.password": "",
		"sinks.redis.db":       0,
		"sinks.redis.stream":   DefaultRedisStream,
		"sinks.redis.max_len":  DefaultRedisMaxLen,
		"sinks.redis.timeout":  "2s",

		"sinks.http.enabled":                         false,
		"sinks.http.url":                             "",
		"sinks.http.token":                           "",
		"sinks.http.timeout":                         "5s",
		"sinks.http.retry.max_attempts":              DefaultHTTPSinkMaxAttempts,
		"sinks.http.retry.initial_interval":          "100ms",
		"sinks.http.retry.max_interval":              "2s",
		"sinks.http.retry.multiplier":                DefaultHTTPSinkMultiplier,
		"sinks.http.circuit_breaker.max_failures":    DefaultHTTPSinkMaxFailures,
		"sinks.http.circuit_breaker.timeout":         "30s",
		"sinks.http.circuit_breaker.half_open_limit": DefaultHTTPSinkHalfOpenLimit,
	}
}

// Load loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (APP_ prefix)
//  2. Profile config file (configs/{profile}.yaml)
//  3. Base config file (configs/base.yaml)
//  4. Default values
func Load(profile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	err := k.Load(confmap.Provider(defaults(), "."), nil)
	if err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. Load base config file if it exists
	err = loadFileIfExists(k, "configs/base.yaml")
	if err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	// 3. Load profile config file if it exists
	if profile != "" {
		profilePath := fmt.Sprintf("configs/%s.yaml", profile)

		err := loadFileIfExists(k, profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	// 4. Load environment variables with APP_ prefix
	err = k.Load(env.Provider(envPrefix, ".", envKey(k.Keys())), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config

	err = k.Unmarshal("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey maps APP_SCOPE_MAX_BREADCRUMBS to scope.max_breadcrumbs. Known keys
// are matched exactly so underscores inside a key name survive; unknown
// variables fall back to one level per underscore.
func envKey(known []string) func(string) string {
	byEnv := make(map[string]string, len(known))
	for _, key := range known {
		byEnv[strings.ReplaceAll(key, ".", "_")] = key
	}

	return func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if key, ok := byEnv[name]; ok {
			return key
		}

		return strings.ReplaceAll(name, "_", ".")
	}
}

// loadFileIfExists loads a YAML config file if it exists.
// Returns nil if the file doesn't exist, error only for parse/read failures.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
