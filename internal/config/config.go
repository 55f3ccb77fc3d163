package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime configuration for the control panel.
type Config struct {
	// Core
	ListenAddr string
	DaemonURL  string
	LogLevel   string

	// Daemon call timeouts. Pull/generate/chat streams are never bounded.
	MetadataTimeout time.Duration
	ShowTimeout     time.Duration
	LoadTimeout     time.Duration

	// Session
	ShowCacheTTL        time.Duration
	AutoRefreshInterval time.Duration
	ActivityBuffer      int

	// Streaming
	ThroughputSampleInterval time.Duration

	// Keep-alive presets
	DefaultKeepAlive   string
	QuickLoadKeepAlive string

	// Observability
	MetricsEnabled bool
}

// Load parses env vars and returns a validated Config.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: getEnvString("LISTEN_ADDR", ":8501"),
		DaemonURL:  getEnvString("DAEMON_URL", "http://localhost:11434"),
		LogLevel:   getEnvString("LOG_LEVEL", "info"),

		MetadataTimeout: getEnvDuration("METADATA_TIMEOUT", 5*time.Second),
		ShowTimeout:     getEnvDuration("SHOW_TIMEOUT", 10*time.Second),
		LoadTimeout:     getEnvDuration("LOAD_TIMEOUT", 30*time.Second),

		ShowCacheTTL:        getEnvDuration("SHOW_CACHE_TTL", 5*time.Minute),
		AutoRefreshInterval: getEnvDuration("AUTO_REFRESH_INTERVAL", 5*time.Second),
		ActivityBuffer:      getEnvInt("ACTIVITY_BUFFER", 200),

		ThroughputSampleInterval: getEnvDuration("THROUGHPUT_SAMPLE_INTERVAL", time.Second),

		DefaultKeepAlive:   getEnvString("DEFAULT_KEEP_ALIVE", "5m"),
		QuickLoadKeepAlive: getEnvString("QUICK_LOAD_KEEP_ALIVE", "60m"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}
	if err := ValidateDaemonURL(c.DaemonURL); err != nil {
		return fmt.Errorf("DAEMON_URL: %w", err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q (must be debug|info|warn|error)", c.LogLevel)
	}

	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT must be > 0")
	}
	if c.ShowTimeout <= 0 {
		return fmt.Errorf("SHOW_TIMEOUT must be > 0")
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("LOAD_TIMEOUT must be > 0")
	}
	if c.ShowCacheTTL < 0 {
		return fmt.Errorf("SHOW_CACHE_TTL must be >= 0")
	}
	if c.AutoRefreshInterval < time.Second {
		return fmt.Errorf("AUTO_REFRESH_INTERVAL must be >= 1s")
	}
	if c.ActivityBuffer < 1 {
		return fmt.Errorf("ACTIVITY_BUFFER must be >= 1")
	}
	if c.ThroughputSampleInterval <= 0 {
		return fmt.Errorf("THROUGHPUT_SAMPLE_INTERVAL must be > 0")
	}

	// keep_alive accepts Go-style durations plus bare integers (seconds).
	for name, v := range map[string]string{
		"DEFAULT_KEEP_ALIVE":    c.DefaultKeepAlive,
		"QUICK_LOAD_KEEP_ALIVE": c.QuickLoadKeepAlive,
	} {
		if !ValidKeepAlive(v) {
			return fmt.Errorf("invalid %s: %q", name, v)
		}
	}

	return nil
}

// ValidateDaemonURL checks that s is an absolute http(s) URL with a host.
func ValidateDaemonURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// ValidKeepAlive reports whether v is a keep_alive value: plain seconds, a
// Go duration, or a whole number of days ("1d").
func ValidKeepAlive(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if _, err := strconv.Atoi(v); err == nil {
		return true
	}
	if strings.HasSuffix(v, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		return err == nil && n >= 0
	}
	_, err := time.ParseDuration(v)
	return err == nil
}

// NormalizeKeepAlive rewrites day values into hours. The daemon parses
// keep_alive with time.ParseDuration, which has no day unit.
func NormalizeKeepAlive(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil && n >= 0 {
			return strconv.Itoa(n*24) + "h"
		}
	}
	return v
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
