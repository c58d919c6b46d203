// Package config loads the root task configuration: allocator sizing, the
// environment record location and diagnostics settings. Values come from an
// optional YAML file and are then overridden by CAPKIT_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/capkit/cap/env"
	"github.com/joshuapare/capkit/internal/abi"
)

// Environment variables consulted by Load.
const (
	EnvFirstFreeCap = env.VarFirstFreeCap
	EnvCapMax       = env.VarCapMax
	EnvEnvFile      = "CAPKIT_ENV_FILE"
	EnvLogLevel     = "CAPKIT_LOG_LEVEL"
	EnvLogAlloc     = "CAPKIT_LOG_ALLOC"
)

// ErrInvalid indicates a configuration value out of range.
var ErrInvalid = errors.New("config: invalid value")

// Config is the root task configuration.
type Config struct {
	Allocator AllocatorConfig `yaml:"allocator"`
	Log       LogConfig       `yaml:"log"`
	Trace     TraceConfig     `yaml:"trace"`
}

// AllocatorConfig sizes the process capability allocator.
type AllocatorConfig struct {
	// Capacity is the number of slots in the pool.
	Capacity int `yaml:"capacity"`
	// FirstFreeCap seeds the in-memory environment record.
	FirstFreeCap int `yaml:"first_free_cap"`
	// EnvFile, when set, selects a file-backed environment record shared
	// with cooperating processes.
	EnvFile string `yaml:"env_file"`
}

// LogConfig controls the diagnostic sink.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Alloc enables per-slot debug records from the allocator.
	Alloc bool `yaml:"alloc"`
}

// TraceConfig controls OpenTelemetry span export.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Allocator: AllocatorConfig{
			Capacity:     abi.DefaultCapAllocatorMax,
			FirstFreeCap: abi.DefaultFirstFreeCap,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty) on top of Default and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvFirstFreeCap); v != "" {
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvFirstFreeCap, v, err)
		}
		c.Allocator.FirstFreeCap = int(n)
	}
	if v := os.Getenv(EnvCapMax); v != "" {
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvCapMax, v, err)
		}
		c.Allocator.Capacity = int(n)
	}
	if v := os.Getenv(EnvEnvFile); v != "" {
		c.Allocator.EnvFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if os.Getenv(EnvLogAlloc) != "" {
		c.Log.Alloc = true
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Allocator.Capacity <= 0 {
		return fmt.Errorf("%w: allocator.capacity must be positive, got %d", ErrInvalid, c.Allocator.Capacity)
	}
	if c.Allocator.FirstFreeCap < 0 {
		return fmt.Errorf("%w: allocator.first_free_cap must not be negative, got %d", ErrInvalid, c.Allocator.FirstFreeCap)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
