package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds the embedded SQLite settings shared by the tenant
// directory and the job queue.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OrchestratorConfig holds onboarding pipeline settings.
type OrchestratorConfig struct {
	PoolSize      int           `yaml:"pool_size"`
	QueueCapacity int           `yaml:"queue_capacity"`
	StageTimeout  time.Duration `yaml:"stage_timeout"`
}

// LifecycleConfig holds settings for the service lifecycle controller.
type LifecycleConfig struct {
	TenantsRoot        string        `yaml:"tenants_root"`
	ConfigReadyTimeout time.Duration `yaml:"config_ready_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete service configuration.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads configuration from an optional YAML file, applies environment
// overrides, fills defaults and validates. An empty or missing path is not
// an error; the service then runs on defaults and environment alone.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies environment variables, which take
// precedence over file values.
func applyEnvironmentOverrides(cfg *Config) {
	if path := os.Getenv("TENANTGRID_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if size := os.Getenv("TENANTGRID_POOL_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Orchestrator.PoolSize = n
		}
	}
	if capacity := os.Getenv("TENANTGRID_QUEUE_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			cfg.Orchestrator.QueueCapacity = n
		}
	}
	if timeout := os.Getenv("TENANTGRID_STAGE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Orchestrator.StageTimeout = d
		}
	}
	if root := os.Getenv("TENANTGRID_TENANTS_ROOT"); root != "" {
		cfg.Lifecycle.TenantsRoot = root
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// setDefaults fills in default values for unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "tenantgrid.db"
	}
	if cfg.Orchestrator.PoolSize == 0 {
		cfg.Orchestrator.PoolSize = 5
	}
	if cfg.Orchestrator.QueueCapacity == 0 {
		cfg.Orchestrator.QueueCapacity = 1024
	}
	if cfg.Orchestrator.StageTimeout == 0 {
		cfg.Orchestrator.StageTimeout = 2 * time.Minute
	}
	if cfg.Lifecycle.TenantsRoot == "" {
		cfg.Lifecycle.TenantsRoot = "/tenants"
	}
	if cfg.Lifecycle.ConfigReadyTimeout == 0 {
		cfg.Lifecycle.ConfigReadyTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Orchestrator.PoolSize < 1 {
		return fmt.Errorf("orchestrator.pool_size must be positive")
	}
	if c.Orchestrator.QueueCapacity < 1 {
		return fmt.Errorf("orchestrator.queue_capacity must be positive")
	}
	if c.Orchestrator.StageTimeout <= 0 {
		return fmt.Errorf("orchestrator.stage_timeout must be positive")
	}
	if c.Lifecycle.TenantsRoot == "" || c.Lifecycle.TenantsRoot[0] != '/' {
		return fmt.Errorf("lifecycle.tenants_root must be an absolute path")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}
