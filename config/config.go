// Package config loads the wrapper's optional YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rubocop-daemon/wrapper/paths"
	"github.com/rubocop-daemon/wrapper/workspace"
)

// Environment variables that override the file.
const (
	EnvUseBundler = "RUBOCOP_DAEMON_USE_BUNDLER"
	EnvDebug      = "RUBOCOP_DAEMON_DEBUG"
)

// Config holds the wrapper configuration
type Config struct {
	Marker          string        `yaml:"marker"`           // File marking a project root
	Host            string        `yaml:"host"`             // Host the worker listens on
	WorkerCommand   string        `yaml:"worker_command"`   // Worker executable
	FallbackCommand string        `yaml:"fallback_command"` // Tool run when the worker is not installed
	UseBundler      bool          `yaml:"use_bundler"`      // Prefix both commands with "bundle exec"
	ProbeWorker     bool          `yaml:"probe_worker"`     // Connect to an existing worker before trusting its token
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"` // Wait for token/port after spawning
	Debug           bool          `yaml:"debug"`

	filePath string
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Marker:          workspace.DefaultMarker,
		Host:            "localhost",
		WorkerCommand:   "rubocop-daemon",
		FallbackCommand: "rubocop",
		ProbeTimeout:    500 * time.Millisecond,
		ReadyTimeout:    5 * time.Second,
	}
}

// Load reads the config from the default location. A missing file yields
// the defaults.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, filling unset fields from Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// FilePath returns the path the config was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// ApplyEnv applies environment overrides. Both toggles are presence-based:
// any value, including the empty string, enables them.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if _, ok := lookup(EnvUseBundler); ok {
		c.UseBundler = true
	}
	if _, ok := lookup(EnvDebug); ok {
		c.Debug = true
	}
}

// Validate checks the config for values the wrapper cannot work with.
func (c *Config) Validate() error {
	if c.Marker == "" {
		return fmt.Errorf("marker must not be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.WorkerCommand == "" {
		return fmt.Errorf("worker_command must not be empty")
	}
	if c.FallbackCommand == "" {
		return fmt.Errorf("fallback_command must not be empty")
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must not be negative")
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout must not be negative")
	}
	return nil
}
