// Package rfconfig is the engine's YAML-driven configuration: a nested
// struct loaded from YAML, then overridden from environment variables,
// then validated with every violation collected instead of failing on
// the first one.
package rfconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"reactiveflow/internal/logging"
)

// Config is the root configuration object for a flowctl process.
type Config struct {
	Manager   ManagerConfig   `yaml:"manager"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ManagerConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size"`
	TaskQueueLen   int `yaml:"task_queue_len"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	JSON      bool   `yaml:"json"`
	AddCaller bool   `yaml:"add_caller"`
	FilePath  string `yaml:"file_path"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "stdout" or "otlp"
	OTLPTarget  string `yaml:"otlp_target"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration a flowctl process starts with absent
// any file or environment overrides.
func Default() Config {
	return Config{
		Manager: ManagerConfig{WorkerPoolSize: 4, TaskQueueLen: 64},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Exporter:    "stdout",
			ServiceName: "reactiveflow",
		},
	}
}

// Load reads and parses a YAML config file, starting from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides lets a small set of environment variables override the
// loaded file, covering the same knobs an operator would expect to override
// config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RFLOW_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Manager.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("RFLOW_TASK_QUEUE_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Manager.TaskQueueLen = n
		}
	}
	if v := os.Getenv("RFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RFLOW_LOG_JSON"); v != "" {
		c.Logging.JSON = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RFLOW_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
}

// Validate accumulates every configuration violation instead of stopping
// at the first.
func (c *Config) Validate() error {
	var err error
	if c.Manager.WorkerPoolSize < 1 {
		err = multierr.Append(err, fmt.Errorf("manager.worker_pool_size must be >= 1, got %d", c.Manager.WorkerPoolSize))
	}
	if c.Manager.TaskQueueLen < 0 {
		err = multierr.Append(err, fmt.Errorf("manager.task_queue_len must be >= 0, got %d", c.Manager.TaskQueueLen))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level))
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout", "otlp":
		default:
			err = multierr.Append(err, fmt.Errorf("telemetry.exporter %q is not one of stdout/otlp", c.Telemetry.Exporter))
		}
		if c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPTarget == "" {
			err = multierr.Append(err, fmt.Errorf("telemetry.otlp_target is required when exporter is otlp"))
		}
	}
	return err
}

// Log writes the effective configuration to lgr at Info level, field by
// field.
func (c Config) Log(lgr logging.Logger) {
	lgr.Info("effective configuration",
		logging.F("worker_pool_size", c.Manager.WorkerPoolSize),
		logging.F("task_queue_len", c.Manager.TaskQueueLen),
		logging.F("log_level", c.Logging.Level),
		logging.F("telemetry_enabled", c.Telemetry.Enabled),
		logging.F("telemetry_exporter", c.Telemetry.Exporter),
	)
}
