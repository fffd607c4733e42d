// Package config loads validator settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/acctwatch/server/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Addr is the listen address of the validator.
	Addr string `yaml:"addr"`
	// Token guards /ws (query parameter) and /api (bearer header). Empty disables auth.
	Token string `yaml:"auth_token"`
	// Accounts is the number of counters provisioned at genesis.
	Accounts int `yaml:"accounts"`
	// Keys are explicit genesis counter keys, provisioned in addition to Accounts.
	Keys           []string      `yaml:"keys"`
	CommitBuffer   int           `yaml:"commit_buffer"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	Log            Log           `yaml:"log"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (l Log) Logger() logger.Config {
	return logger.Config{Level: l.Level, Format: l.Format, File: l.File}
}

func Default() Config {
	return Config{
		Addr:           "127.0.0.1:8900",
		Accounts:       3,
		CommitBuffer:   256,
		ConfirmTimeout: 10 * time.Second,
		Log:            Log{Level: "info"},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
		}
		c.Addr = net.JoinHostPort(host, port)
	}
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		c.Token = token
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		c.Log.File = file
	}
	return nil
}

func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}
	if c.Accounts < 0 {
		return errors.New("accounts must not be negative")
	}
	if c.CommitBuffer < 0 {
		return errors.New("commit_buffer must not be negative")
	}
	if c.ConfirmTimeout < 0 {
		return errors.New("confirm_timeout must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
