// Package config loads doc-chat settings from defaults, a YAML file, the
// environment (including a .env file) and command-line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvServer         = "DOC_CHAT_SERVER"
	EnvTimeout        = "DOC_CHAT_TIMEOUT"
	EnvRevealInterval = "DOC_CHAT_REVEAL_INTERVAL"
	EnvRevealUnit     = "DOC_CHAT_REVEAL_UNIT"
	EnvHistoryTTL     = "DOC_CHAT_HISTORY_TTL"
	EnvLogFile        = "DOC_CHAT_LOG_FILE"
)

// Defaults
const (
	DefaultServer         = "http://localhost:8000/api"
	DefaultTimeout        = "60s"
	DefaultRevealInterval = "15ms"
	DefaultRevealUnit     = 1
	DefaultHistoryTTL     = "10m"
)

// Config is the resolved client configuration
type Config struct {
	Server string       `yaml:"server" validate:"required,http_url"`
	Reveal RevealConfig `yaml:"reveal"`
	Log    LogConfig    `yaml:"log"`

	Timeout    time.Duration `yaml:"-" validate:"gte=0"`
	HistoryTTL time.Duration `yaml:"-" validate:"gte=0"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw    string `yaml:"timeout"`
	HistoryTTLRaw string `yaml:"history_ttl"`

	// Source is the YAML file that was read, empty when none was
	Source string `yaml:"-"`
}

// RevealConfig controls the pacing of incremental answers
type RevealConfig struct {
	Interval    time.Duration `yaml:"-" validate:"gte=0"`
	IntervalRaw string        `yaml:"interval"`
	Unit        int           `yaml:"unit" validate:"min=1"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	File    string `yaml:"file"`
	Verbose bool   `yaml:"verbose"`
}

// Options tell Load where to look and what the command line overrides
type Options struct {
	// Path is an explicit config file; it must exist. When empty DefaultPath is
	// tried and silently skipped if absent.
	Path string
	// EnvFile is loaded into the process environment if present; defaults to .env
	EnvFile string

	Server  string
	Verbose bool
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server:        DefaultServer,
		TimeoutRaw:    DefaultTimeout,
		HistoryTTLRaw: DefaultHistoryTTL,
		Reveal: RevealConfig{
			IntervalRaw: DefaultRevealInterval,
			Unit:        DefaultRevealUnit,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/doc-chat/config.yaml, falling back to ~/.config
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "doc-chat", "config.yaml")
}

// Load resolves the configuration
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultPath(), false
	}
	if path != "" {
		if err := cfg.readFile(path, required); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if opts.Server != "" {
		cfg.Server = opts.Server
	}
	if opts.Verbose {
		cfg.Log.Verbose = true
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(EnvServer); ok {
		c.Server = v
	}
	if v, ok := lookupEnv(EnvTimeout); ok {
		c.TimeoutRaw = v
	}
	if v, ok := lookupEnv(EnvRevealInterval); ok {
		c.Reveal.IntervalRaw = v
	}
	if v, ok := lookupEnv(EnvHistoryTTL); ok {
		c.HistoryTTLRaw = v
	}
	if v, ok := lookupEnv(EnvLogFile); ok {
		c.Log.File = v
	}
	if v, ok := lookupEnv(EnvRevealUnit); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", EnvRevealUnit, v, err)
		}
		c.Reveal.Unit = n
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "http_url":
		return fmt.Sprintf("%s must be an http(s) URL, got %q", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.TimeoutRaw != "" {
		cfg.Timeout, err = time.ParseDuration(cfg.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.TimeoutRaw, err)
		}
	}

	if cfg.HistoryTTLRaw != "" {
		cfg.HistoryTTL, err = time.ParseDuration(cfg.HistoryTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing history_ttl %q: %w", cfg.HistoryTTLRaw, err)
		}
	}

	if cfg.Reveal.IntervalRaw != "" {
		cfg.Reveal.Interval, err = time.ParseDuration(cfg.Reveal.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reveal.interval %q: %w", cfg.Reveal.IntervalRaw, err)
		}
	}

	return nil
}
