package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the remediation engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Paths    PathsConfig    `yaml:"paths"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Executor ExecutorConfig `yaml:"executor"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the operator API and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// PathsConfig locates the on-disk collaborators: the event store, the
// services log, the remediation scripts, and the dashboard snapshot files.
type PathsConfig struct {
	DataDir      string `yaml:"dataDir"`
	LogsDir      string `yaml:"logsDir"`
	ScriptsDir   string `yaml:"scriptsDir"`
	DashboardDir string `yaml:"dashboardDir"`
	PatternsFile string `yaml:"patternsFile"`
}

// StorePath returns the SQLite database location inside the data directory.
func (p PathsConfig) StorePath() string {
	return filepath.Join(p.DataDir, "remedy.db")
}

// ModelPath returns the persisted classifier model location.
func (p PathsConfig) ModelPath() string {
	return filepath.Join(p.DataDir, "model.json")
}

// ServicesLog returns the log file tailed by the monitor.
func (p PathsConfig) ServicesLog() string {
	return filepath.Join(p.LogsDir, "services.log")
}

// MonitorConfig controls sweep cadence and the retry policy.
type MonitorConfig struct {
	CheckInterval time.Duration `yaml:"checkInterval"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	ReadWindow    int           `yaml:"readWindow"`
	Retry         RetryPolicy   `yaml:"retry"`
}

// RetryPolicy bounds re-attempts for unresolved incidents. Zero values keep
// the historical behaviour: unbounded retries with no backoff.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// ExecutorConfig controls remediation script invocation.
type ExecutorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// TrainerConfig controls the advisory classifier.
type TrainerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	MinSamples   int           `yaml:"minSamples"`
	MaxFeatures  int           `yaml:"maxFeatures"`
	TestFraction float64       `yaml:"testFraction"`
}

// ArchiveConfig controls rotation of old log files.
type ArchiveConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retentionDays"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REMEDY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Monitor.ReadWindow <= 0 {
		cfg.Monitor.ReadWindow = 50
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8085",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Paths: PathsConfig{
			DataDir:      "data",
			LogsDir:      "logs",
			ScriptsDir:   "scripts",
			DashboardDir: "dashboard",
			PatternsFile: "configs/patterns/default.yaml",
		},
		Monitor: MonitorConfig{
			CheckInterval: 5 * time.Second,
			RetryInterval: 5 * time.Second,
			ReadWindow:    50,
		},
		Executor: ExecutorConfig{Timeout: 30 * time.Second},
		Trainer: TrainerConfig{
			Interval:     5 * time.Minute,
			MinSamples:   10,
			MaxFeatures:  100,
			TestFraction: 0.2,
		},
		Archive: ArchiveConfig{
			Interval:      time.Hour,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMEDY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("REMEDY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("REMEDY_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("REMEDY_LOGS_DIR"); v != "" {
		cfg.Paths.LogsDir = v
	}
	if v := os.Getenv("REMEDY_SCRIPTS_DIR"); v != "" {
		cfg.Paths.ScriptsDir = v
	}
	if v := os.Getenv("REMEDY_DASHBOARD_DIR"); v != "" {
		cfg.Paths.DashboardDir = v
	}
	if v := os.Getenv("REMEDY_PATTERNS_FILE"); v != "" {
		cfg.Paths.PatternsFile = v
	}
	if v := os.Getenv("REMEDY_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.CheckInterval = d
		}
	}
	if v := os.Getenv("REMEDY_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.RetryInterval = d
		}
	}
	if v := os.Getenv("REMEDY_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("REMEDY_RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Retry.Backoff = d
		}
	}
	if v := os.Getenv("REMEDY_EXECUTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.Timeout = d
		}
	}
	if v := os.Getenv("REMEDY_TRAINER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Trainer.Interval = d
		}
	}
	if v := os.Getenv("REMEDY_ARCHIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.Interval = d
		}
	}
	if v := os.Getenv("REMEDY_ARCHIVE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Archive.RetentionDays = n
		}
	}
	if v := os.Getenv("REMEDY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REMEDY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
