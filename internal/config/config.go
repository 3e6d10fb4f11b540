// Package config holds the Hub's single configuration struct. It is built
// once at process startup in cmd/hub and injected downward into every
// component — no package in this module keeps mutable configuration state
// of its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PortRange is an inclusive [Low, High] range used by the port reservation
// registry to allocate a port for one of the four stack sockets.
type PortRange struct {
	Low  int
	High int
}

// Config is the fully resolved set of values the Hub needs to run. Every
// field here corresponds to one of the environment variables enumerated in
// spec.md §6.
type Config struct {
	// HTTPAddr is the listen address for the Control-Plane API (REST + WS).
	HTTPAddr string

	// DatabaseURL is the DSN for the persistent store. A "postgres://" or
	// "postgresql://" URL selects the postgres driver; anything else is
	// handed to the embedded pure-Go SQLite driver.
	DatabaseURL string

	// BusURL is the URL of the NATS messaging fabric.
	BusURL string

	// BackendPorts, FrontendPorts, DBPorts, CachePorts are the four
	// allocation pools a project stack's ports are drawn from.
	BackendPorts  PortRange
	FrontendPorts PortRange
	DBPorts       PortRange
	CachePorts    PortRange

	// WorkerTokens bounds the number of node runs the workflow engine may
	// execute concurrently across all workflow runs.
	WorkerTokens int

	// StaleThreshold is the maximum tolerated age of a federation heartbeat.
	StaleThreshold time.Duration

	// StaleCheckInterval is how often the sweeper scans for stale rows.
	StaleCheckInterval time.Duration

	// APIKeys is the set of accepted bearer tokens for the /api/v1 routes
	// (all of them except /api/v1/ws).
	// An empty set disables authentication — development only.
	APIKeys map[string]struct{}

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// ContainerDriver selects the registered ContainerDriver implementation
	// ("docker" or the in-memory "fake").
	ContainerDriver string

	// DataDir is where the Hub persists local state that must survive
	// restarts outside the database (none required today, reserved for
	// future TLS material the way the teacher reserves it for JWT keys).
	DataDir string

	// EncryptionKey is stretched to a 32-byte key with HKDF-SHA256
	// (store.DeriveEncryptionKey) and used to encrypt sensitive fields at
	// rest (Project.RegistryAuth).
	EncryptionKey string
}

// FromEnv builds a Config from environment variables, applying the defaults
// documented in spec.md §6. It never returns a partially-defaulted zero
// value — every field is explicitly set.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:        envOrDefault("HUB_HTTP_ADDR", ":8080"),
		DatabaseURL:     envOrDefault("HUB_DATABASE_URL", "./hub.db"),
		BusURL:          envOrDefault("HUB_BUS_URL", "nats://127.0.0.1:4222"),
		LogLevel:        envOrDefault("HUB_LOG_LEVEL", "info"),
		ContainerDriver: envOrDefault("HUB_CONTAINER_DRIVER", "docker"),
		DataDir:         envOrDefault("HUB_DATA_DIR", "./data"),
		EncryptionKey:   envOrDefault("HUB_ENCRYPTION_KEY", ""),
	}

	var err error
	if cfg.BackendPorts, err = parsePortRange(envOrDefault("PORT_RANGE_BACKEND", "18000-18999")); err != nil {
		return Config{}, fmt.Errorf("config: PORT_RANGE_BACKEND: %w", err)
	}
	if cfg.FrontendPorts, err = parsePortRange(envOrDefault("PORT_RANGE_FRONTEND", "19000-19999")); err != nil {
		return Config{}, fmt.Errorf("config: PORT_RANGE_FRONTEND: %w", err)
	}
	if cfg.DBPorts, err = parsePortRange(envOrDefault("PORT_RANGE_DB", "15400-15499")); err != nil {
		return Config{}, fmt.Errorf("config: PORT_RANGE_DB: %w", err)
	}
	if cfg.CachePorts, err = parsePortRange(envOrDefault("PORT_RANGE_CACHE", "16300-16399")); err != nil {
		return Config{}, fmt.Errorf("config: PORT_RANGE_CACHE: %w", err)
	}

	if cfg.WorkerTokens, err = strconv.Atoi(envOrDefault("WORKER_TOKENS", "8")); err != nil {
		return Config{}, fmt.Errorf("config: WORKER_TOKENS: %w", err)
	}

	staleSecs, err := strconv.Atoi(envOrDefault("STALE_THRESHOLD_SECONDS", "90"))
	if err != nil {
		return Config{}, fmt.Errorf("config: STALE_THRESHOLD_SECONDS: %w", err)
	}
	cfg.StaleThreshold = time.Duration(staleSecs) * time.Second

	sweepSecs, err := strconv.Atoi(envOrDefault("STALE_CHECK_INTERVAL_SECONDS", "60"))
	if err != nil {
		return Config{}, fmt.Errorf("config: STALE_CHECK_INTERVAL_SECONDS: %w", err)
	}
	cfg.StaleCheckInterval = time.Duration(sweepSecs) * time.Second

	cfg.APIKeys = parseAPIKeys(os.Getenv("API_KEYS"))

	return cfg, nil
}

func parsePortRange(raw string) (PortRange, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return PortRange{}, fmt.Errorf("expected LOW-HIGH, got %q", raw)
	}
	low, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid low bound %q: %w", parts[0], err)
	}
	high, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid high bound %q: %w", parts[1], err)
	}
	if low <= 0 || high < low {
		return PortRange{}, fmt.Errorf("invalid range %d-%d", low, high)
	}
	return PortRange{Low: low, High: high}, nil
}

func parseAPIKeys(raw string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
