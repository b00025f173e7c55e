// Package config loads the carbonledger configuration file.
//
// The file is YAML. Unknown keys are rejected, missing keys keep their
// defaults, and the result is validated before use:
//
//	store:
//	  driver: sqlite3        # sqlite3 | sqlite | memory | postgres
//	  path: carbon_credits.db
//	retry:
//	  max_attempts: 3
//	  initial_interval: 50ms
//	  max_interval: 1s
//	log:
//	  level: warn            # debug | info | warn | error
//	  format: text           # text | json
//	output: text             # text | json
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "carbon_credits.db"

// Config is the top-level configuration.
type Config struct {
	Store  StoreConfig `yaml:"store" json:"store,omitempty"`
	Retry  RetryConfig `yaml:"retry" json:"retry,omitempty"`
	Log    LogConfig   `yaml:"log" json:"log,omitempty"`
	Output string      `yaml:"output" json:"output,omitempty" validate:"oneof=text json" jsonschema:"enum=text,enum=json,default=text"`
}

// StoreConfig selects and locates the entity store.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver,omitempty" validate:"oneof=sqlite3 sqlite memory postgres" jsonschema:"enum=sqlite3,enum=sqlite,enum=memory,enum=postgres,default=sqlite3"`
	Path   string `yaml:"path" json:"path,omitempty" jsonschema_description:"SQLite database file"`
	DSN    string `yaml:"dsn" json:"dsn,omitempty" jsonschema_description:"PostgreSQL connection string"`
}

// RetryConfig bounds how often a storage failure is retried.
type RetryConfig struct {
	MaxAttempts     uint     `yaml:"max_attempts" json:"max_attempts,omitempty" validate:"gte=1,lte=100" jsonschema:"minimum=1,maximum=100,default=3"`
	InitialInterval Duration `yaml:"initial_interval" json:"initial_interval,omitempty" validate:"gt=0"`
	MaxInterval     Duration `yaml:"max_interval" json:"max_interval,omitempty" validate:"gtefield=InitialInterval"`
}

// LogConfig controls the diagnostic logger on stderr.
type LogConfig struct {
	Level  string `yaml:"level" json:"level,omitempty" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=warn"`
	Format string `yaml:"format" json:"format,omitempty" validate:"oneof=text json" jsonschema:"enum=text,enum=json,default=text"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverSQLite3,
			Path:   DefaultPath,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: Duration(50 * time.Millisecond),
			MaxInterval:     Duration(time.Second),
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Output: "text",
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalJSON renders the duration the way the config file spells it.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
