// Package config provides unified configuration loading for qualsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// Config contains all qualsim configuration settings.
type Config struct {
	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Simulation bounds tree expansion.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Output controls how finished trees are written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Store controls persistence of finished runs.
	Store StoreConfig `json:"store" yaml:"store"`
}

// LoggingConfig configures qualsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .qualsim/decisions.jsonl.
	// "trace" additionally logs every applied effect.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// SimulationConfig maps onto simulation.Options.
type SimulationConfig struct {
	MaxNodes       int `json:"max_nodes" yaml:"max_nodes"`
	MaxBranchDepth int `json:"max_branch_depth" yaml:"max_branch_depth"`
	Parallelism    int `json:"parallelism" yaml:"parallelism"`

	// Timeout bounds a whole run. Zero disables it. A run that times out
	// is kept and marked truncated.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OutputConfig sets defaults for the simulate command's output.
type OutputConfig struct {
	// Format is one of json, yaml, dot or text.
	Format string `json:"format" yaml:"format"`

	// Dir, when set, receives a document per run named <run id>.<format>.
	// Supports ${VAR} expansion.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	// Enabled saves every finished run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Scope picks the store a run is saved to and the stores listed:
	// local, global or both.
	Scope string `json:"scope" yaml:"scope"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Simulation: SimulationConfig{
			MaxNodes:       constants.DefaultMaxNodes,
			MaxBranchDepth: constants.DefaultMaxBranchDepth,
			Parallelism:    constants.DefaultParallelism,
		},
		Output: OutputConfig{
			Format: constants.FormatText,
		},
		Store: StoreConfig{
			Enabled: true,
			Scope:   string(constants.ScopeLocal),
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.qualsim/config.yaml -> <root>/.qualsim/config.yaml ->
// environment variables. Later files only override the keys they set.
func Load(root string) (*Config, error) {
	config := Default()

	var paths []string
	if dir, err := pathutil.GlobalDataDir(); err == nil {
		paths = append(paths, filepath.Join(dir, constants.ConfigFileName))
	}
	if root != "" {
		paths = append(paths, filepath.Join(pathutil.LocalDataDir(root), constants.ConfigFileName))
	}

	for _, path := range paths {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if err := mergeFile(config, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	applyEnvOverrides(config)
	config.Output.Dir = expandEnvVars(config.Output.Dir)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	config.Output.Dir = expandEnvVars(config.Output.Dir)
	return config, nil
}

func mergeFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", pathutil.RedactPath(path), err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	if c.Simulation.MaxNodes < 1 {
		return fmt.Errorf("max_nodes must be at least 1, got %d", c.Simulation.MaxNodes)
	}

	if c.Simulation.MaxBranchDepth < 1 {
		return fmt.Errorf("max_branch_depth must be at least 1, got %d", c.Simulation.MaxBranchDepth)
	}

	if c.Simulation.Parallelism < 1 || c.Simulation.Parallelism > constants.MaxParallelism {
		return fmt.Errorf("parallelism must be between 1 and %d, got %d", constants.MaxParallelism, c.Simulation.Parallelism)
	}

	if c.Simulation.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Simulation.Timeout)
	}

	if !constants.ValidFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %s (valid: json, yaml, dot, text)", c.Output.Format)
	}

	if _, err := constants.ParseScope(c.Store.Scope); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numbers are ignored.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("QUALSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("QUALSIM_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if v := os.Getenv("QUALSIM_MAX_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.MaxNodes = n
		}
	}

	if v := os.Getenv("QUALSIM_MAX_BRANCH_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.MaxBranchDepth = n
		}
	}

	if v := os.Getenv("QUALSIM_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Parallelism = n
		}
	}

	if v := os.Getenv("QUALSIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.Timeout = d
		}
	}

	if v := os.Getenv("QUALSIM_OUTPUT_FORMAT"); v != "" {
		config.Output.Format = v
	}

	if v := os.Getenv("QUALSIM_OUTPUT_DIR"); v != "" {
		config.Output.Dir = v
	}

	if v := os.Getenv("QUALSIM_STORE_ENABLED"); v != "" {
		config.Store.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("QUALSIM_STORE_SCOPE"); v != "" {
		config.Store.Scope = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
