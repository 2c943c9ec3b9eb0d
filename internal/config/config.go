// Package config loads banbench settings from compiled defaults, an
// optional YAML file, and BANBENCH_* environment variables, in that order
// of precedence (later wins). Command-line flags override all three.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is consulted when no --config flag is given.
const DefaultFile = "banbench.yaml"

const envPrefix = "BANBENCH_"

// Config is the top-level configuration for a banbench invocation.
type Config struct {
	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`

	Replay  ReplayConfig  `koanf:"replay"`
	Collect CollectConfig `koanf:"collect"`
	Hook    HookConfig    `koanf:"hook"`
}

// ReplayConfig drives the replay subcommand.
type ReplayConfig struct {
	LogFile        string        `koanf:"log_file"`
	Parquet        string        `koanf:"parquet"`
	StartYear      int           `koanf:"start_year"`
	SpeedFactor    float64       `koanf:"speed_factor"`
	LoggerCmd      string        `koanf:"logger_cmd"`
	DryRun         bool          `koanf:"dry_run"`
	MaxLines       int           `koanf:"max_lines"`
	FilterIP       string        `koanf:"filter_ip"`
	SleepCap       time.Duration `koanf:"sleep_cap"`
	StatusInterval int           `koanf:"status_interval"`
}

// CollectConfig drives the collect subcommand.
type CollectConfig struct {
	Parquet     string `koanf:"parquet"`
	ActionsLog  string `koanf:"actions_log"`
	Fail2banLog string `koanf:"fail2ban_log"`
	Output      string `koanf:"output"`
	History     string `koanf:"history"`
}

// HookConfig drives the log-action subcommand.
type HookConfig struct {
	LogFile string `koanf:"log_file"`
}

// Default returns a Config with the stock paths and pacing values.
func Default() Config {
	return Config{
		LogLevel: "info",
		Replay: ReplayConfig{
			LogFile:        "benchmark.log",
			Parquet:        "benchmark.parquet",
			SpeedFactor:    600,
			LoggerCmd:      "logger --priority authpriv.info --tag replay",
			SleepCap:       5 * time.Second,
			StatusInterval: 1000,
		},
		Collect: CollectConfig{
			Parquet:     "benchmark.parquet",
			ActionsLog:  "/var/log/f2b-actions.json",
			Fail2banLog: "/var/log/fail2ban.log",
			Output:      "results/metrics.json",
			History:     "results/history.json",
		},
		Hook: HookConfig{
			LogFile: "/var/log/f2b-actions.json",
		},
	}
}

// Load builds the effective configuration. path names a YAML file; when
// empty, DefaultFile is consulted and may be absent. A path given
// explicitly must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	// BANBENCH_REPLAY__SPEED_FACTOR=900 maps to replay.speed_factor; the
	// double underscore separates nesting levels so key names keep their
	// single underscores.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.Replay.SpeedFactor <= 0 {
		return fmt.Errorf("replay.speed_factor must be positive, got %v", c.Replay.SpeedFactor)
	}
	if c.Replay.SleepCap < 0 {
		return fmt.Errorf("replay.sleep_cap must not be negative, got %s", c.Replay.SleepCap)
	}
	if c.Replay.MaxLines < 0 {
		return fmt.Errorf("replay.max_lines must not be negative, got %d", c.Replay.MaxLines)
	}
	if c.Replay.StatusInterval < 0 {
		return fmt.Errorf("replay.status_interval must not be negative, got %d", c.Replay.StatusInterval)
	}
	return nil
}

// WriteExample writes a commented example config to the given path.
func WriteExample(path string) error {
	example := `# banbench configuration. Every key can also come from the environment:
# BANBENCH_REPLAY__SPEED_FACTOR=900 overrides replay.speed_factor.
log_level: info
log_json: false

replay:
  log_file: benchmark.log
  parquet: benchmark.parquet
  speed_factor: 600
  logger_cmd: logger --priority authpriv.info --tag replay
  sleep_cap: 5s
  status_interval: 1000

collect:
  parquet: benchmark.parquet
  actions_log: /var/log/f2b-actions.json
  fail2ban_log: /var/log/fail2ban.log
  output: results/metrics.json
  history: results/history.json

hook:
  log_file: /var/log/f2b-actions.json
`
	return os.WriteFile(path, []byte(example), 0o644)
}
