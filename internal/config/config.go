// Package config loads viewflow settings from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/viewflow/internal/monitor"
)

// Environment variable names.
const (
	EnvMode      = "VIEWFLOW_MODE"
	EnvLogLevel  = "VIEWFLOW_LOG_LEVEL"
	EnvLogFormat = "VIEWFLOW_LOG_FORMAT"
	EnvJournal   = "VIEWFLOW_JOURNAL"
)

// Value sources recorded in Config.Sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
)

// Config is the resolved configuration.
type Config struct {
	// Mode is "debug" or "release". Empty means the build default.
	Mode string `yaml:"mode"`

	Logging Logging `yaml:"logging"`
	Journal Journal `yaml:"journal"`

	// Sources maps each setting to where its value came from.
	Sources map[string]string `yaml:"-"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Journal configures the diagnostic event journal.
type Journal struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string `yaml:"path"`

	// Run labels the records of this process. Empty means a generated id.
	Run string `yaml:"run"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Sources: map[string]string{
			"mode":           SourceDefault,
			"logging.level":  SourceDefault,
			"logging.format": SourceDefault,
			"journal.path":   SourceDefault,
			"journal.run":    SourceDefault,
		},
	}
}

// ConfigError is a configuration file error.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Path + ": " + e.Message
}

// Load resolves the configuration: defaults, then path (if non-empty),
// then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigError{Path: path, Message: err.Error()}
	}

	c.set("mode", &c.Mode, file.Mode, SourceFile)
	c.set("logging.level", &c.Logging.Level, file.Logging.Level, SourceFile)
	c.set("logging.format", &c.Logging.Format, file.Logging.Format, SourceFile)
	c.set("journal.path", &c.Journal.Path, file.Journal.Path, SourceFile)
	c.set("journal.run", &c.Journal.Run, file.Journal.Run, SourceFile)
	return nil
}

// LoadEnv overlays the VIEWFLOW_* variables that are set.
func (c *Config) LoadEnv() {
	c.set("mode", &c.Mode, os.Getenv(EnvMode), SourceEnv)
	c.set("logging.level", &c.Logging.Level, os.Getenv(EnvLogLevel), SourceEnv)
	c.set("logging.format", &c.Logging.Format, os.Getenv(EnvLogFormat), SourceEnv)
	c.set("journal.path", &c.Journal.Path, os.Getenv(EnvJournal), SourceEnv)
}

func (c *Config) set(key string, dst *string, val, source string) {
	if val == "" {
		return
	}
	*dst = val
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
}

// Validate rejects unknown mode, level and format values.
func (c *Config) Validate() error {
	if _, err := c.MonitorMode(); err != nil {
		return err
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Logging.Format)
	}
	return nil
}

// MonitorMode parses Mode.
func (c *Config) MonitorMode() (monitor.Mode, error) {
	return monitor.ParseMode(c.Mode)
}

// SlogLevel parses Level.
func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(l.Level))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// NewLogger builds a logger writing to w with the configured level and
// format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Logging.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch c.Logging.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want text or json)", c.Logging.Format)
}
