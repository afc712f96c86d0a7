// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when a field is omitted from the YAML file.
const (
	DefaultStayProbability     = 0.78
	DefaultRecoveryThreshold   = 5
	DefaultSanitationThreshold = 5
	DefaultRandomInfected      = 5
	DefaultRandomEnvironment   = 50
	DefaultOutputDir           = "output"
)

// Topology points at the topology file and controls random seeding of special nodes.
type Topology struct {
	Path              string `yaml:"path"`
	RandomInfected    int    `yaml:"random_infected"`
	RandomEnvironment int    `yaml:"random_environment"`
	StrictCounts      bool   `yaml:"strict_counts"`
}

// Output controls where results are persisted.
type Output struct {
	Dir     string `yaml:"dir"`
	NodeLog bool   `yaml:"node_log"`
}

// SimulationConfig is the root configuration for a run.
type SimulationConfig struct {
	RoundLimit          int           `yaml:"round_limit"`
	Seed                int64         `yaml:"seed"`
	StayProbability     float64       `yaml:"stay_probability"`
	RecoveryThreshold   int           `yaml:"recovery_threshold"`
	SanitationThreshold int           `yaml:"sanitation_threshold"`
	StallTimeout        time.Duration `yaml:"stall_timeout"`
	LogLevel            string        `yaml:"log_level"`
	Topology            Topology      `yaml:"topology"`
	Output              Output        `yaml:"output"`
}

// Default returns a configuration in convergence mode with the stock thresholds.
func Default() *SimulationConfig {
	cfg := &SimulationConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load loads YAML config and validates it against a CUE schema.
// An empty cueSchemaPath validates against the embedded schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes, fills defaults and checks value ranges.
func Parse(data []byte) (*SimulationConfig, error) {
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SimulationConfig) applyDefaults() {
	if c.StayProbability == 0 {
		c.StayProbability = DefaultStayProbability
	}
	if c.RecoveryThreshold == 0 {
		c.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if c.SanitationThreshold == 0 {
		c.SanitationThreshold = DefaultSanitationThreshold
	}
	if c.Topology.RandomInfected == 0 {
		c.Topology.RandomInfected = DefaultRandomInfected
	}
	if c.Topology.RandomEnvironment == 0 {
		c.Topology.RandomEnvironment = DefaultRandomEnvironment
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the ranges the engine relies on.
func (c *SimulationConfig) Validate() error {
	if c.StayProbability < 0 || c.StayProbability > 1 {
		return fmt.Errorf("stay_probability must be within [0,1], got %v", c.StayProbability)
	}
	if c.RoundLimit < 0 {
		return fmt.Errorf("round_limit must not be negative, got %d", c.RoundLimit)
	}
	if c.RecoveryThreshold < 0 || c.SanitationThreshold < 0 {
		return fmt.Errorf("thresholds must not be negative")
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout must not be negative, got %s", c.StallTimeout)
	}
	if c.Topology.RandomInfected < 0 || c.Topology.RandomEnvironment < 0 {
		return fmt.Errorf("topology random counts must not be negative")
	}
	return nil
}

// ConvergenceMode reports whether the run stops on burn-out instead of a fixed round count.
func (c *SimulationConfig) ConvergenceMode() bool {
	return c.RoundLimit == 0
}
