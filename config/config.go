/*
Package config loads server configuration.

LAYERING (later wins):
  1. Built-in defaults
  2. .env file in the working directory, when present (godotenv; never
     overrides variables already set in the environment)
  3. YAML file given with -config, when present
  4. Environment variables

VALIDATION:
  Load fails on an unknown driver, a missing DATABASE_URL for postgres, a bad
  timezone, a malformed run_at or a non-positive check interval.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		URL      string `yaml:"url"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"database"`

	Dues struct {
		Timezone       string `yaml:"timezone"`
		Concurrency    int    `yaml:"concurrency"`
		MaxPrepaidDays int    `yaml:"max_prepaid_days"`
	} `yaml:"dues"`

	Sweep struct {
		Enabled       bool          `yaml:"enabled"`
		RunAt         string        `yaml:"run_at"`
		CheckInterval time.Duration `yaml:"check_interval"`
	} `yaml:"sweep"`

	Cron struct {
		Secret string `yaml:"secret"`
	} `yaml:"cron"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Database.Driver = DriverSQLite
	c.Database.Path = "./canteen.db"
	c.Database.MaxConns = 10
	c.Dues.Timezone = "UTC"
	c.Dues.Concurrency = 8
	c.Dues.MaxPrepaidDays = 366
	c.Sweep.Enabled = true
	c.Sweep.RunAt = "00:30"
	c.Sweep.CheckInterval = time.Minute
	c.Logging.Level = "info"
	return c
}

// Load applies the layers in order. An empty path skips the YAML layer; a
// path that does not exist is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DATABASE_URL", &c.Database.URL)
	str("DUES_TIMEZONE", &c.Dues.Timezone)
	str("SWEEP_RUN_AT", &c.Sweep.RunAt)
	str("CRON_SECRET", &c.Cron.Secret)
	str("LOG_LEVEL", &c.Logging.Level)

	if err := num("SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := num("DUES_CONCURRENCY", &c.Dues.Concurrency); err != nil {
		return err
	}
	if err := num("DUES_MAX_PREPAID_DAYS", &c.Dues.MaxPrepaidDays); err != nil {
		return err
	}
	if err := flag("SWEEP_ENABLED", &c.Sweep.Enabled); err != nil {
		return err
	}
	if err := flag("LOG_PRETTY", &c.Logging.Pretty); err != nil {
		return err
	}
	if v, ok := lookup("SWEEP_CHECK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SWEEP_CHECK_INTERVAL: %w", err)
		}
		c.Sweep.CheckInterval = d
	}
	return nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.RunAt(); err != nil {
		return err
	}
	if c.Dues.MaxPrepaidDays <= 0 {
		return fmt.Errorf("invalid max prepaid days %d", c.Dues.MaxPrepaidDays)
	}
	if c.Sweep.CheckInterval <= 0 {
		return errors.New("sweep check interval must be positive")
	}
	return nil
}

// Location resolves the reference timezone used for day keys.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Dues.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Dues.Timezone, err)
	}
	return loc, nil
}

// RunAt parses sweep.run_at as HH:MM.
func (c *Config) RunAt() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Sweep.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sweep run_at %q, want HH:MM", c.Sweep.RunAt)
	}
	return t.Hour(), t.Minute(), nil
}
