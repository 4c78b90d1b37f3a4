package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return f, nil
}

// FromEnv overlays environment variables onto cfg. It fails on values that do not parse.
func FromEnv(cfg *Config) error {
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.SQLitePath = getEnv("DB_PATH", cfg.Store.SQLitePath)
	cfg.Store.PebbleDir = getEnv("PEBBLE_DIR", cfg.Store.PebbleDir)
	cfg.Fetch.BaseURL = getEnv("FETCH_BASE_URL", cfg.Fetch.BaseURL)
	cfg.Collector.URL = getEnv("COLLECTOR_URL", cfg.Collector.URL)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Audience = getEnv("JWT_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.WorkerKeyHash = getEnv("WORKER_API_KEY_HASH", cfg.Auth.WorkerKeyHash)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"EXECUTION_TIMEOUT", &cfg.Queue.ExecutionTimeout},
		{"CLAIM_WAIT", &cfg.Queue.ClaimWait},
		{"REAP_INTERVAL", &cfg.Queue.ReapInterval},
		{"IDLE_EXPIRY", &cfg.Cache.IdleExpiry},
		{"USED_EXPIRY", &cfg.Cache.UsedExpiry},
		{"EVICT_INTERVAL", &cfg.Cache.EvictInterval},
		{"FETCH_TIMEOUT", &cfg.Fetch.Timeout},
		{"FETCH_RETRY_DELAY", &cfg.Fetch.BaseDelay},
		{"COLLECTOR_TIMEOUT", &cfg.Collector.Timeout},
		{"COLLECTOR_RETRY_DELAY", &cfg.Collector.BaseDelay},
		{"TOKEN_TTL", &cfg.Auth.TokenTTL},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CACHE_SHARDS", &cfg.Cache.Shards},
		{"FETCH_RETRIES", &cfg.Fetch.Retries},
		{"COLLECTOR_RETRIES", &cfg.Collector.Retries},
		{"ENQUEUE_BURST", &cfg.RateLimit.Burst},
	}
	for _, i := range ints {
		v, err := getInt(i.key, *i.dst)
		if err != nil {
			return err
		}
		*i.dst = v
	}

	rps, err := getFloat("ENQUEUE_RATE_LIMIT", cfg.RateLimit.RPS)
	if err != nil {
		return err
	}
	cfg.RateLimit.RPS = rps
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
