package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/state-hub/state-hub/internal/application/orchestrator"
)

// Config holds service configuration.
type Config struct {
	ServerAddr    string
	DatabaseURL   string // empty disables the journal
	JournalEnable bool
	MigrationsDir string

	Lanes            int
	MaxQueueDepth    int
	Policy           orchestrator.Policy
	FailureThreshold int
	BreakerCooldown  time.Duration
	RequestTimeout   time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	journalEnable := parseBool(getenv("JOURNAL_ENABLE", "false"), false)
	dsn := os.Getenv("DATABASE_URL")
	if journalEnable && dsn == "" {
		user := getenv("POSTGRES_USER", "state_hub")
		pass := getenv("POSTGRES_PASSWORD", "state_hub_pass")
		db := getenv("POSTGRES_DB", "state_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	policy := orchestrator.Policy(getenv("BACKPRESSURE_POLICY", string(orchestrator.PolicyBlock)))
	switch policy {
	case orchestrator.PolicyBlock, orchestrator.PolicyDropNewest, orchestrator.PolicyReject:
	default:
		return nil, fmt.Errorf("invalid BACKPRESSURE_POLICY %q", policy)
	}

	return &Config{
		ServerAddr:       getenv("SERVER_ADDR", "0.0.0.0:8080"),
		DatabaseURL:      dsn,
		JournalEnable:    journalEnable,
		MigrationsDir:    getenv("MIGRATIONS_DIR", "migrations"),
		Lanes:            parseInt(getenv("LANES", ""), orchestrator.DefaultLanes),
		MaxQueueDepth:    parseInt(getenv("QUEUE_DEPTH", ""), orchestrator.DefaultMaxQueueDepth),
		Policy:           policy,
		FailureThreshold: parseInt(getenv("FAILURE_THRESHOLD", ""), orchestrator.DefaultFailureThreshold),
		BreakerCooldown:  parseDuration(getenv("BREAKER_COOLDOWN", ""), orchestrator.DefaultBreakerCooldown),
		RequestTimeout:   parseDuration(getenv("REQUEST_TIMEOUT", ""), orchestrator.DefaultRequestTimeout),
	}, nil
}

// OrchestratorOptions maps the configured knobs onto orchestrator options.
func (c *Config) OrchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		Lanes:            c.Lanes,
		MaxQueueDepth:    c.MaxQueueDepth,
		Policy:           c.Policy,
		FailureThreshold: c.FailureThreshold,
		BreakerCooldown:  c.BreakerCooldown,
		RequestTimeout:   c.RequestTimeout,
	}
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
