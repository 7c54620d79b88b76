// Package config loads the YAML run configuration for the fabrik CLI
// (cmd/fabrik), keeping the teacher's load/save/default shape but
// adapted to YAML (gopkg.in/yaml.v3) since run configuration here is
// operator-facing policy knobs, not API credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is one run's generation policy, mirroring the Generation
// Context construction options (§4.G) plus CLI-only plugin wiring.
type Config struct {
	Seed                     int64    `yaml:"seed"`
	Strict                   bool     `yaml:"strict"`
	OptionalFieldProbability float64  `yaml:"optional_field_probability"`
	RetryLimits              Retries  `yaml:"retry_limits"`
	PluginModules            []string `yaml:"plugin_modules,omitempty"`
}

// Retries mirrors gencontext.RetryLimits; duplicated here (rather than
// imported) so the CLI's config schema doesn't couple to the core's
// internal struct layout.
type Retries struct {
	Instance int `yaml:"instance"`
	Unique   int `yaml:"unique"`
}

// DefaultConfig returns the documented defaults (§4.G: optional-field
// probability 0.7, lenient mode).
func DefaultConfig() Config {
	return Config{
		Seed:                     42,
		Strict:                   false,
		OptionalFieldProbability: 0.7,
		RetryLimits:              Retries{Instance: 50, Unique: 100},
	}
}

// Dir returns the directory where CLI-local config is stored,
// preferring a project-local .fabrik directory if present or
// creatable, falling back to a home-level directory.
func Dir() (string, error) {
	if cwd, err := os.Getwd(); err == nil {
		localDir := filepath.Join(cwd, ".fabrik")
		if stat, err := os.Stat(localDir); (err == nil && stat.IsDir()) || os.IsNotExist(err) {
			return localDir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fabrik"), nil
}

// File returns the full path to the run config file.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the run configuration from path. If path is empty, it
// resolves File() and returns DefaultConfig() when nothing exists yet.
func Load(path string) (Config, error) {
	if path == "" {
		resolved, err := File()
		if err != nil {
			return DefaultConfig(), err
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return DefaultConfig(), fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path (or the resolved default location if path
// is empty), creating its directory as needed.
func Save(cfg Config, path string) error {
	if path == "" {
		resolved, err := File()
		if err != nil {
			return err
		}
		path = resolved
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
