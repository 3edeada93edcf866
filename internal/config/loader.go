package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every evbus environment variable.
const EnvPrefix = "EVBUS"

// Loader resolves configuration from defaults, an optional file, the
// environment and bound command-line flags, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader that reads EVBUS_ environment variables.
func NewLoader() *Loader {
	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("scripts.paths", EnvPrefix+"_SCRIPTS_PATHS", EnvPrefix+"_SCRIPTS")
	return &Loader{v: v}
}

// BindFlag makes a changed command-line flag override the setting key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	return l.v.BindPFlag(key, flag)
}

// Load reads the file at path, if non-empty, and returns the validated
// result. An explicit path that does not exist is ErrFileNotFound.
func (l *Loader) Load(path string) (*Config, error) {
	source := "environment"
	if path != "" {
		format, err := formatOf(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		l.v.SetConfigFile(path)
		l.v.SetConfigType(format)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
		}
		source = path
	}
	return decode(l.v, source)
}

// Load resolves the configuration from defaults, the file at path (if
// non-empty) and the EVBUS_ environment, then validates it.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// LoadFS reads the file at path from fsys over the defaults and validates
// the result. The environment is not consulted.
func LoadFS(fsys fs.FS, path string) (*Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return decode(v, path)
}

// newViper creates a viper instance holding the built-in defaults.
func newViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("bus.telemetry", d.Bus.Telemetry)
	v.SetDefault("bus.slow_handler", d.Bus.SlowHandler.String())
	v.SetDefault("scripts.paths", []string{})
	v.SetDefault("scripts.timeout", d.Scripts.Timeout.String())
	return v
}

func decode(v *viper.Viper, source string) (*Config, error) {
	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		stringToListHook,
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatOf returns the viper config type for the extension of path.
func formatOf(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return "toml", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// stringToListHook splits comma-separated strings, as found in the
// environment, into string lists. Blank entries are dropped.
func stringToListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeFor[[]string]() {
		return data, nil
	}
	var out []string
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
