package bundi

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environments recognised by Config.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds application settings.
type Config struct {
	// Address is the listen address used by Listen when none is given.
	Address string `yaml:"address"`

	// GlobalPrefix is applied as if passed to SetGlobalPrefix.
	GlobalPrefix string `yaml:"globalPrefix"`

	Environment string        `yaml:"environment"`
	Logging     LoggingConfig `yaml:"logging"`

	// ShutdownTimeout bounds Close when triggered by a shutdown signal.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// ReadHeaderTimeout is set on the HTTP server created by Listen.
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// DefaultConfig returns the settings used when no configuration is given.
func DefaultConfig() *Config {
	return &Config{
		Address:     ":3000",
		Environment: EnvDevelopment,
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// LoadConfig loads configuration in layers: defaults, the YAML file at path
// (skipped when path is empty or the file does not exist), then BUNDI_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BUNDI_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("BUNDI_GLOBAL_PREFIX"); v != "" {
		c.GlobalPrefix = v
	}
	if v := os.Getenv("BUNDI_ENVIRONMENT"); v != "" {
		c.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("BUNDI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BUNDI_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("environment: unknown value %q", c.Environment))
	}

	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.encoding: unknown value %q", c.Logging.Encoding))
	}

	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdownTimeout: must not be negative"))
	}
	if c.ReadHeaderTimeout < 0 {
		errs = append(errs, errors.New("readHeaderTimeout: must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
