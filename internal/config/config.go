// Package config loads orchestrator configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// environment variables prefixed ORCH_. An optional .env file is loaded into
// the environment first and never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join("config", "orchestrator.yaml")

// Config is the full orchestrator configuration.
type Config struct {
	Logging      logger.LoggingConfig `yaml:"logging"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator"`
	Admin        AdminConfig          `yaml:"admin"`
	Services     ServicesConfig       `yaml:"services"`
	Schedule     []ScheduledScatter   `yaml:"schedule"`
}

// OrchestratorConfig tunes the owner loop.
type OrchestratorConfig struct {
	// TickInterval drives Tick from the owner loop. Zero disables it.
	TickInterval time.Duration `yaml:"tick_interval" env:"ORCH_TICK_INTERVAL"`

	// JournalSize bounds the in-memory journal.
	JournalSize int `yaml:"journal_size" env:"ORCH_JOURNAL_SIZE"`

	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace string `yaml:"metrics_namespace" env:"ORCH_METRICS_NAMESPACE"`

	// ShutdownTimeout bounds how long the binary waits for Shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ORCH_SHUTDOWN_TIMEOUT"`
}

// AdminConfig controls the HTTP admin surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" env:"ORCH_ADMIN_ENABLED"`
	Addr    string `yaml:"addr" env:"ORCH_ADMIN_ADDR"`

	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ORCH_ADMIN_ALLOWED_ORIGINS"`

	// ScatterRate limits POST /events per client, in requests per second.
	// Zero disables the limit.
	ScatterRate  float64 `yaml:"scatter_rate" env:"ORCH_ADMIN_SCATTER_RATE"`
	ScatterBurst int     `yaml:"scatter_burst" env:"ORCH_ADMIN_SCATTER_BURST"`
}

// ServicesConfig controls which built-in services are registered.
type ServicesConfig struct {
	// Disabled lists identifiers discovery must not register.
	Disabled []string `yaml:"disabled" env:"ORCH_DISABLED_SERVICES"`

	// HeartbeatEvent is the event the heartbeat service scatters on each tick.
	HeartbeatEvent string `yaml:"heartbeat_event" env:"ORCH_HEARTBEAT_EVENT"`

	// EventLogSize bounds the event log service's history.
	EventLogSize int `yaml:"event_log_size" env:"ORCH_EVENT_LOG_SIZE"`
}

// ScheduledScatter is a cron job that scatters one event.
type ScheduledScatter struct {
	Name  string   `yaml:"name"`
	Spec  string   `yaml:"spec"`
	Event string   `yaml:"event"`
	Args  []string `yaml:"args"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Orchestrator: OrchestratorConfig{
			TickInterval:     time.Second,
			JournalSize:      1024,
			MetricsNamespace: "orchestrator",
			ShutdownTimeout:  10 * time.Second,
		},
		Admin: AdminConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:9090",
			ScatterRate:  20,
			ScatterBurst: 40,
		},
		Services: ServicesConfig{
			HeartbeatEvent: "heartbeat",
			EventLogSize:   256,
		},
	}
}

// LoadEnvFile loads path into the process environment. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path, and
// the environment. An empty path skips the file; a missing DefaultPath is
// tolerated, any other missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		file = DefaultPath
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", file, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == "":
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	if c.Orchestrator.TickInterval < 0 {
		return fmt.Errorf("orchestrator.tick_interval: must not be negative")
	}
	if c.Orchestrator.JournalSize <= 0 {
		return fmt.Errorf("orchestrator.journal_size: must be positive")
	}
	if c.Orchestrator.ShutdownTimeout <= 0 {
		return fmt.Errorf("orchestrator.shutdown_timeout: must be positive")
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("admin.addr: required when admin is enabled")
	}
	if c.Admin.ScatterRate < 0 || c.Admin.ScatterBurst < 0 {
		return fmt.Errorf("admin.scatter_rate: must not be negative")
	}
	seen := make(map[string]bool, len(c.Schedule))
	for i, job := range c.Schedule {
		if job.Name == "" {
			return fmt.Errorf("schedule[%d]: name is required", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("schedule[%d]: duplicate job %q", i, job.Name)
		}
		seen[job.Name] = true
		if job.Spec == "" || job.Event == "" {
			return fmt.Errorf("schedule %s: spec and event are required", job.Name)
		}
	}
	return nil
}

// IsDisabled reports whether id is listed in services.disabled.
func (c *Config) IsDisabled(id string) bool {
	for _, d := range c.Services.Disabled {
		if strings.TrimSpace(d) == id {
			return true
		}
	}
	return false
}
