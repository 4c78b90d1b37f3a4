// Package config loads the service configuration from the environment.
//
// Every setting has a default that runs the demo setup on one machine; Load overlays
// environment variables and validates the result, so a bad value fails at start-up
// rather than on first use.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid config")

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr  string
	Store     StoreConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Fetch     FetchConfig
	Collector CollectorConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Log       LogConfig
}

// StoreConfig selects the durable mirror backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
	PebbleDir  string
}

// QueueConfig holds the visibility queue timings.
type QueueConfig struct {
	// ExecutionTimeout is how long a claimed task may go unacknowledged.
	ExecutionTimeout time.Duration
	// ClaimWait is how long get_task waits for a task before answering null.
	ClaimWait time.Duration
	// ReapInterval is the period of the timeout sweep.
	ReapInterval time.Duration
}

// CacheConfig holds the payload cache expiry windows.
type CacheConfig struct {
	IdleExpiry    time.Duration
	UsedExpiry    time.Duration
	EvictInterval time.Duration
	Shards        int
}

// FetchConfig describes the upstream the cache fetches payloads from.
type FetchConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
}

// CollectorConfig describes where completions are forwarded.
type CollectorConfig struct {
	URL       string
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
}

// RateLimitConfig bounds the enqueue rate. RPS zero disables the limit.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// AuthConfig configures worker tokens. An empty WorkerKeyHash disables authentication.
type AuthConfig struct {
	JWTSecret     string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	WorkerKeyHash string
}

// Enabled reports whether queue routes require a token.
func (a AuthConfig) Enabled() bool { return a.WorkerKeyHash != "" }

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when no environment variable is set.
func Default() Config {
	return Config{
		HTTPAddr: ":3000",
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "queue.db",
			PebbleDir:  "queue.pebble",
		},
		Queue: QueueConfig{
			ExecutionTimeout: 30 * time.Second,
			ClaimWait:        10 * time.Second,
			ReapInterval:     time.Second,
		},
		Cache: CacheConfig{
			IdleExpiry:    30 * time.Second,
			UsedExpiry:    10 * time.Minute,
			EvictInterval: 10 * time.Second,
			Shards:        32,
		},
		Fetch: FetchConfig{
			BaseURL:   "http://localhost:3001/get_exploit",
			Timeout:   5 * time.Second,
			Retries:   3,
			BaseDelay: 100 * time.Millisecond,
		},
		Collector: CollectorConfig{
			URL:       "http://localhost:3002/submit",
			Timeout:   5 * time.Second,
			Retries:   3,
			BaseDelay: 100 * time.Millisecond,
		},
		Auth: AuthConfig{
			JWTSecret: "development-insecure-secret-change-me",
			Issuer:    "task-queue-api",
			Audience:  "task-queue-workers",
			TokenTTL:  24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default overlaid with the environment, validated.
func Load() (Config, error) {
	cfg := Default()
	if err := FromEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every setting and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.HTTPAddr == "" {
		bad("HTTP_ADDR is required")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			bad("DB_PATH is required for the sqlite driver")
		}
	case DriverPebble:
		if c.Store.PebbleDir == "" {
			bad("PEBBLE_DIR is required for the pebble driver")
		}
	case DriverMemory:
	default:
		bad("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	positive := map[string]time.Duration{
		"EXECUTION_TIMEOUT": c.Queue.ExecutionTimeout,
		"CLAIM_WAIT":        c.Queue.ClaimWait,
		"REAP_INTERVAL":     c.Queue.ReapInterval,
		"IDLE_EXPIRY":       c.Cache.IdleExpiry,
		"USED_EXPIRY":       c.Cache.UsedExpiry,
		"EVICT_INTERVAL":    c.Cache.EvictInterval,
		"FETCH_TIMEOUT":     c.Fetch.Timeout,
		"COLLECTOR_TIMEOUT": c.Collector.Timeout,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			bad("%s must be positive", name)
		}
	}
	if c.Cache.Shards <= 0 {
		bad("CACHE_SHARDS must be positive")
	}
	if c.Fetch.Retries < 0 || c.Collector.Retries < 0 {
		bad("retry counts must not be negative")
	}
	for name, raw := range map[string]string{"FETCH_BASE_URL": c.Fetch.BaseURL, "COLLECTOR_URL": c.Collector.URL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			bad("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.RateLimit.RPS < 0 {
		bad("ENQUEUE_RATE_LIMIT must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		bad("ENQUEUE_BURST must be positive when ENQUEUE_RATE_LIMIT is set")
	}
	if c.Auth.Enabled() {
		if c.Auth.JWTSecret == "" {
			bad("JWT_SECRET is required when WORKER_API_KEY_HASH is set")
		}
		if c.Auth.TokenTTL <= 0 {
			bad("TOKEN_TTL must be positive")
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		bad("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return errors.Join(errs...)
}
