package config

import (
	"slices"
	"strings"
	"time"
)

// Config is the complete evbus configuration.
type Config struct {
	Log     LogConfig    `mapstructure:"log" toml:"log" yaml:"log"`
	Bus     BusConfig    `mapstructure:"bus" toml:"bus" yaml:"bus"`
	Scripts ScriptConfig `mapstructure:"scripts" toml:"scripts" yaml:"scripts"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" toml:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" toml:"format" yaml:"format"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	// Telemetry enables the stdout OpenTelemetry exporters.
	Telemetry bool `mapstructure:"telemetry" toml:"telemetry" yaml:"telemetry"`
	// SlowHandler logs handlers running longer than this. Zero disables it.
	SlowHandler Duration `mapstructure:"slow_handler" toml:"slow_handler" yaml:"slow_handler"`
}

// ScriptConfig configures Lua listeners.
type ScriptConfig struct {
	// Paths lists Lua scripts to load as listeners.
	Paths []string `mapstructure:"paths" toml:"paths" yaml:"paths"`
	// Timeout bounds a single script handler invocation.
	Timeout Duration `mapstructure:"timeout" toml:"timeout" yaml:"timeout"`
}

// Allowed values for closed settings.
var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bus: BusConfig{
			SlowHandler: Duration(500 * time.Millisecond),
		},
		Scripts: ScriptConfig{
			Timeout: Duration(time.Second),
		},
	}
}

// Validate checks every closed setting and normalises case.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	if !slices.Contains(LogLevels, c.Log.Level) {
		return &ValidationError{Setting: "log.level", Value: c.Log.Level, Allowed: LogLevels}
	}

	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if !slices.Contains(LogFormats, c.Log.Format) {
		return &ValidationError{Setting: "log.format", Value: c.Log.Format, Allowed: LogFormats}
	}

	if c.Bus.SlowHandler < 0 {
		return &ValidationError{Setting: "bus.slow_handler", Value: c.Bus.SlowHandler}
	}
	if c.Scripts.Timeout < 0 {
		return &ValidationError{Setting: "scripts.timeout", Value: c.Scripts.Timeout}
	}
	return nil
}
