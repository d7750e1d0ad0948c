package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load-balancing strategies for sandbox creation.
const (
	StrategyRoundRobin  = "round-robin"
	StrategyLeastLoaded = "least-loaded"
	StrategyRandom      = "random"
)

// Config holds all configuration for the nimbus server. It is read once at
// startup and treated as immutable for the process lifetime.
type Config struct {
	Port     int
	APIKey   string
	LogLevel string

	// Provider selection
	DefaultProvider  string // "local", "workspace", "runner"
	FallbackProvider string // used for the single failover retry on create
	LoadBalancing    bool
	Strategy         string // round-robin, least-loaded, random
	FailoverEnabled  bool

	// Session housekeeping
	IdleSessionTimeout time.Duration // sessions idle longer than this are reaped
	ReapInterval       time.Duration // how often the manager scans for idle sessions
	MetricsInterval    time.Duration // metrics polling cadence, 0 disables

	// Local provider
	LocalBaseDir         string
	LocalMaxIdle         time.Duration // provider-local janitor threshold
	LocalCleanupInterval time.Duration
	LocalWriteBackups    bool // write .backup copies before overwriting files

	// Workspace provider (managed remote workspace service)
	WorkspaceAPIURL string
	WorkspaceToken  string

	// Runner provider (secondary remote executor over NATS)
	RunnerNATSURL string
	RunnerTimeout time.Duration

	// Event fan-out
	NATSURL  string // lifecycle event relay sink, empty disables
	RedisURL string // file-change broadcast channel, empty disables
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		APIKey:   os.Getenv("NIMBUS_API_KEY"),
		LogLevel: envOrDefault("NIMBUS_LOG_LEVEL", "info"),

		DefaultProvider:  envOrDefault("NIMBUS_DEFAULT_PROVIDER", "local"),
		FallbackProvider: os.Getenv("NIMBUS_FALLBACK_PROVIDER"),
		LoadBalancing:    os.Getenv("NIMBUS_LOAD_BALANCING") == "true",
		Strategy:         envOrDefault("NIMBUS_LB_STRATEGY", StrategyRoundRobin),
		FailoverEnabled:  envOrDefault("NIMBUS_FAILOVER", "true") == "true",

		IdleSessionTimeout: envOrDefaultDuration("NIMBUS_IDLE_SESSION_TIMEOUT", time.Hour),
		ReapInterval:       envOrDefaultDuration("NIMBUS_REAP_INTERVAL", 5*time.Minute),
		MetricsInterval:    envOrDefaultDuration("NIMBUS_METRICS_INTERVAL", 30*time.Second),

		LocalBaseDir:         envOrDefault("NIMBUS_LOCAL_BASE_DIR", "/data/sandboxes"),
		LocalMaxIdle:         envOrDefaultDuration("NIMBUS_LOCAL_MAX_IDLE", 24*time.Hour),
		LocalCleanupInterval: envOrDefaultDuration("NIMBUS_LOCAL_CLEANUP_INTERVAL", 10*time.Minute),
		LocalWriteBackups:    os.Getenv("NIMBUS_LOCAL_WRITE_BACKUPS") == "true",

		WorkspaceAPIURL: os.Getenv("NIMBUS_WORKSPACE_API_URL"),
		WorkspaceToken:  os.Getenv("NIMBUS_WORKSPACE_TOKEN"),

		RunnerNATSURL: os.Getenv("NIMBUS_RUNNER_NATS_URL"),
		RunnerTimeout: envOrDefaultDuration("NIMBUS_RUNNER_TIMEOUT", 30*time.Second),

		NATSURL:  os.Getenv("NIMBUS_NATS_URL"),
		RedisURL: os.Getenv("NIMBUS_REDIS_URL"),
	}

	if portStr := os.Getenv("NIMBUS_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid NIMBUS_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	switch cfg.Strategy {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyRandom:
	default:
		return nil, fmt.Errorf("invalid NIMBUS_LB_STRATEGY %q", cfg.Strategy)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
