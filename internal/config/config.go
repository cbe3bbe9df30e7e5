package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	State      StateConfig      `yaml:"state"`
	TradeLog   TradeLogConfig   `yaml:"trade_log"`
	Events     EventsConfig     `yaml:"events"`
	Regulation RegulationConfig `yaml:"regulation"`
	Log        LogConfig        `yaml:"log"`
}

// HTTPConfig configures the status and metrics listener.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StateConfig configures durable state and operator-curated inputs.
type StateConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
	ProfilesPath string `yaml:"profiles_path"`
}

// TradeLogConfig configures the relational trade-log collaborator. An empty
// DSN disables the optimizer's lookback queries (runs become no-ops).
type TradeLogConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig configures the optional event publisher. An empty address
// resolves the no-op publisher.
type EventsConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

// RegulationConfig configures the adaptive loop.
type RegulationConfig struct {
	OptimizationInterval     time.Duration `yaml:"optimization_interval"`
	MinTradesForOptimization int           `yaml:"min_trades_for_optimization"`
	DegradationThreshold     float64       `yaml:"degradation_threshold"`
	EmergencyRollbackEnabled bool          `yaml:"emergency_rollback_enabled"`
	LearningMode             bool          `yaml:"learning_mode"`
	RetentionDays            int           `yaml:"retention_days"`
	CycleInterval            time.Duration `yaml:"cycle_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddr: ":8090",
		},
		State: StateConfig{
			SnapshotPath: "data/regulator_state.json",
			ProfilesPath: "config/symbol_profiles.yaml",
		},
		TradeLog: TradeLogConfig{
			Timeout: 5 * time.Second,
		},
		Regulation: RegulationConfig{
			OptimizationInterval:     6 * time.Hour,
			MinTradesForOptimization: 20,
			DegradationThreshold:     0.05,
			EmergencyRollbackEnabled: true,
			RetentionDays:            30,
			CycleInterval:            time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file returns
// pure defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.State.SnapshotPath == "" {
		return fmt.Errorf("state.snapshot_path must not be empty")
	}
	if c.Regulation.OptimizationInterval <= 0 {
		return fmt.Errorf("regulation.optimization_interval must be positive, got %v",
			c.Regulation.OptimizationInterval)
	}
	if c.Regulation.MinTradesForOptimization < 1 {
		return fmt.Errorf("regulation.min_trades_for_optimization must be at least 1, got %d",
			c.Regulation.MinTradesForOptimization)
	}
	if c.Regulation.DegradationThreshold <= 0 || c.Regulation.DegradationThreshold >= 1 {
		return fmt.Errorf("regulation.degradation_threshold must be in (0, 1), got %.4f",
			c.Regulation.DegradationThreshold)
	}
	if c.Regulation.RetentionDays < 1 {
		return fmt.Errorf("regulation.retention_days must be at least 1, got %d",
			c.Regulation.RetentionDays)
	}
	if c.Regulation.CycleInterval < time.Minute {
		return fmt.Errorf("regulation.cycle_interval must be at least 1m, got %v",
			c.Regulation.CycleInterval)
	}
	return nil
}
