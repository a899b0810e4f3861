package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by LoadFromEnv.
const EnvPrefix = "TGZGET"

// Config defines configuration for the tgzget CLI.
type Config struct {
	LogLevel     string        `yaml:"log_level" split_words:"true" validate:"oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Colors       bool          `yaml:"colors" split_words:"true"`
	UserAgent    string        `yaml:"user_agent" split_words:"true"`
	Timeout      time.Duration `yaml:"timeout" split_words:"true" validate:"gte=0"`
	MaxIdleConns int           `yaml:"max_idle_conns" split_words:"true" validate:"gt=0"`
	BufferSize   int64         `yaml:"buffer_size" ignored:"true" validate:"gt=0,lte=1073741824"`
	ProgressStep float64       `yaml:"progress_step" split_words:"true" validate:"gt=0,lte=100"`
	Mirror       MirrorConfig  `yaml:"mirror" split_words:"true"`
}

// MirrorConfig defines the optional object-storage copy of the archive.
type MirrorConfig struct {
	Bucket string `yaml:"bucket" split_words:"true" validate:"omitempty,uri"`
	Prefix string `yaml:"prefix" split_words:"true"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel:     "trace",
		Colors:       true,
		UserAgent:    "tgzget",
		MaxIdleConns: 2,
		BufferSize:   32 * 1024, // 32KiB
		ProgressStep: 1,
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	LogLevel     string           `yaml:"log_level"`
	Colors       *bool            `yaml:"colors"`
	UserAgent    string           `yaml:"user_agent"`
	Timeout      string           `yaml:"timeout"`
	MaxIdleConns int              `yaml:"max_idle_conns"`
	BufferSize   string           `yaml:"buffer_size"`
	ProgressStep float64          `yaml:"progress_step"`
	Mirror       yamlMirrorConfig `yaml:"mirror"`
}

type yamlMirrorConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.Colors != nil {
		cfg.Colors = *yc.Colors
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.MaxIdleConns != 0 {
		cfg.MaxIdleConns = yc.MaxIdleConns
	}
	if yc.BufferSize != "" {
		size, err := ParseSize(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = size
	}
	if yc.ProgressStep != 0 {
		cfg.ProgressStep = yc.ProgressStep
	}
	if yc.Mirror.Bucket != "" {
		cfg.Mirror.Bucket = yc.Mirror.Bucket
	}
	if yc.Mirror.Prefix != "" {
		cfg.Mirror.Prefix = yc.Mirror.Prefix
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TGZGET_ prefix. Unset variables leave the
// current value alone.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if v := os.Getenv(EnvPrefix + "_BUFFER_SIZE"); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("parse %s_BUFFER_SIZE: %w", EnvPrefix, err)
		}
		c.BufferSize = size
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", fe.Namespace(), fe.Value(), fe.Tag()))
	}
	return errors.New("config: " + strings.Join(msgs, "; "))
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.MaxIdleConns != 0 {
		c.MaxIdleConns = override.MaxIdleConns
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.ProgressStep != 0 {
		c.ProgressStep = override.ProgressStep
	}
	if override.Mirror.Bucket != "" {
		c.Mirror.Bucket = override.Mirror.Bucket
	}
	if override.Mirror.Prefix != "" {
		c.Mirror.Prefix = override.Mirror.Prefix
	}
	return c
}

// ParseSize parses a human-readable byte size such as "64KiB" or "1MB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size too large: %s", s)
	}
	return int64(n), nil
}
