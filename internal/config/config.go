// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/heartbeat/internal/mode"
)

// Lock backends understood by the runner.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// ConfigurationError marks a configuration problem that must abort startup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Config holds application configuration
type Config struct {
	Mode     mode.Mode
	DataDir  string // Directory holding the SQLite lease database (always absolute)
	LogLevel string
	Port     int

	FastCadence    time.Duration
	SlowCadence    time.Duration
	JobTimeout     time.Duration // Zero disables the per-job deadline
	StartupTimeout time.Duration
	JobsFile       string

	Lock LockConfig

	MongoURI          string
	MongoDatabase     string
	MarketStatusWSURL string
}

// LockConfig holds leader lease settings
type LockConfig struct {
	Enabled        bool
	Backend        string
	Key            string
	TTL            time.Duration
	RenewInterval  time.Duration
	AcquireBackoff time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	modeValue := getEnv("HEARTBEAT_MODE", "HEARTBEAT")
	m, err := mode.Parse(modeValue)
	if err != nil {
		return nil, &ConfigurationError{Field: "HEARTBEAT_MODE", Err: err}
	}

	dataDir, err := filepath.Abs(getEnv("HEARTBEAT_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	env := &envReader{}
	ttl := env.asDuration("HEARTBEAT_LEASE_TTL", 15*time.Second)

	cfg := &Config{
		Mode:           m,
		DataDir:        dataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           env.asInt("HEARTBEAT_PORT", 8090),
		FastCadence:    env.asDuration("HEARTBEAT_FAST_CADENCE", time.Second),
		SlowCadence:    env.asDuration("HEARTBEAT_SLOW_CADENCE", 60*time.Second),
		JobTimeout:     env.asDuration("HEARTBEAT_JOB_TIMEOUT", 0),
		StartupTimeout: env.asDuration("HEARTBEAT_STARTUP_TIMEOUT", 30*time.Second),
		JobsFile:       getEnv("HEARTBEAT_JOBS_FILE", ""),
		Lock: LockConfig{
			Enabled:        env.asBool("HEARTBEAT_LOCK_ENABLED", true),
			Backend:        getEnv("HEARTBEAT_LOCK_BACKEND", BackendSQLite),
			Key:            getEnv("HEARTBEAT_LOCK_KEY", "heartbeat:leader"),
			TTL:            ttl,
			RenewInterval:  env.asDuration("HEARTBEAT_RENEW_INTERVAL", ttl/3),
			AcquireBackoff: env.asDuration("HEARTBEAT_ACQUIRE_BACKOFF", 2*time.Second),
		},
		MongoURI:          getEnv("MONGODB_URI", ""),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "heartbeat"),
		MarketStatusWSURL: getEnv("MARKET_STATUS_WS_URL", ""),
	}
	if env.err != nil {
		return nil, env.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory when the SQLite backend needs it.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// LeaseDBPath returns the SQLite file used by the lease store.
func (c *Config) LeaseDBPath() string {
	return filepath.Join(c.DataDir, "heartbeat.db")
}

// Validate checks cadence and lease settings. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	if c.FastCadence <= 0 {
		return &ConfigurationError{Field: "fast cadence", Err: fmt.Errorf("must be positive, got %s", c.FastCadence)}
	}
	if c.SlowCadence <= 0 {
		return &ConfigurationError{Field: "slow cadence", Err: fmt.Errorf("must be positive, got %s", c.SlowCadence)}
	}
	if c.SlowCadence < c.FastCadence {
		return &ConfigurationError{
			Field: "slow cadence",
			Err:   fmt.Errorf("%s is shorter than fast cadence %s", c.SlowCadence, c.FastCadence),
		}
	}
	if c.JobTimeout < 0 {
		return &ConfigurationError{Field: "job timeout", Err: fmt.Errorf("must not be negative, got %s", c.JobTimeout)}
	}
	if c.StartupTimeout < 0 {
		return &ConfigurationError{Field: "startup timeout", Err: fmt.Errorf("must not be negative, got %s", c.StartupTimeout)}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigurationError{Field: "port", Err: fmt.Errorf("out of range: %d", c.Port)}
	}

	if !c.Lock.Enabled {
		return nil
	}

	switch c.Lock.Backend {
	case BackendSQLite, BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return &ConfigurationError{Field: "MONGODB_URI", Err: errors.New("required for the mongo lock backend")}
		}
	default:
		return &ConfigurationError{Field: "lock backend", Err: fmt.Errorf("unknown backend %q", c.Lock.Backend)}
	}
	if c.Lock.Key == "" {
		return &ConfigurationError{Field: "lock key", Err: errors.New("must not be empty")}
	}
	if c.Lock.TTL <= c.FastCadence {
		return &ConfigurationError{
			Field: "lease ttl",
			Err:   fmt.Errorf("%s must exceed fast cadence %s", c.Lock.TTL, c.FastCadence),
		}
	}
	if c.Lock.RenewInterval <= 0 || c.Lock.RenewInterval > c.Lock.TTL/2 {
		return &ConfigurationError{
			Field: "renew interval",
			Err:   fmt.Errorf("%s must be positive and at most half the lease ttl %s", c.Lock.RenewInterval, c.Lock.TTL),
		}
	}
	if c.Lock.AcquireBackoff <= 0 {
		return &ConfigurationError{Field: "acquire backoff", Err: fmt.Errorf("must be positive, got %s", c.Lock.AcquireBackoff)}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and keeps the first malformed one. An
// unset variable yields the default; a set but unparseable one is a
// ConfigurationError.
type envReader struct {
	err error
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = &ConfigurationError{Field: key, Err: fmt.Errorf("cannot parse %q: %w", value, err)}
	}
}

func (r *envReader) asInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return intVal
}

func (r *envReader) asBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return boolVal
}

// asDuration accepts Go durations ("1.5s") or plain seconds ("60").
func (r *envReader) asDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := parseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return d
}

func parseDuration(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.New("not a duration or a number of seconds")
	}
	return time.Duration(secs * float64(time.Second)), nil
}
