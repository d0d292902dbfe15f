package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/meterdock/meterdock/internal/history"
	"github.com/meterdock/meterdock/internal/logger"
	"github.com/meterdock/meterdock/internal/store"
	"github.com/meterdock/meterdock/internal/tls"
)

// Config represents the top-level TOML structure.
//
//	data_dir = "/var/lib/meterdock"
//	max_concurrent = 2
//
//	[server]
//	listen = ":8080"
//	base_path = "/api"
//
//	[store]
//	type = "sqlite"
//	path = "/var/lib/meterdock/meterdock.db"
//
//	[log]
//	level = "info"
//
//	[metrics]
//	enabled = true
//	listen = ":9090"
//
//	[[history.sinks]]
//	type = "clickhouse"
//	dsn = "clickhouse://localhost:9000/meterdock"
type Config struct {
	DataDir       string          `toml:"data_dir" mapstructure:"data_dir"`
	MaxConcurrent int             `toml:"max_concurrent" mapstructure:"max_concurrent"`
	Server        ServerConfig    `toml:"server" mapstructure:"server"`
	Store         store.Config    `toml:"store" mapstructure:"store"`
	Execution     ExecutionConfig `toml:"execution" mapstructure:"execution"`
	Log           LogConfig       `toml:"log" mapstructure:"log"`
	Metrics       MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History       HistoryConfig   `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string     `toml:"listen" mapstructure:"listen"`
	BasePath string     `toml:"base_path" mapstructure:"base_path"`
	TLS      tls.Config `toml:"tls" mapstructure:"tls"`
}

// ExecutionConfig holds settings applied to every launched JMeter process.
// Env entries override the inherited daemon environment (HEAP, JVM_ARGS,
// JAVA_HOME and friends).
type ExecutionConfig struct {
	Env []string `toml:"env" mapstructure:"env"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	NoColor    bool   `toml:"no_color" mapstructure:"no_color"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Sinks []history.SinkConfig `toml:"sinks" mapstructure:"sinks"`
}

const (
	DefaultListen        = ":8080"
	DefaultBasePath      = "/api"
	DefaultMaxConcurrent = 2
	DefaultDataDir       = "data"
)

// Load reads a TOML config file, applies defaults and validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns a runnable configuration without a config file.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "meterdock.db")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Store.Type {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store type sqlite requires path")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store type postgres requires dsn")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics enabled without listen address")
	}
	if t := c.Server.TLS; t.Enabled && t.CertFile == "" && t.Dir == "" {
		return fmt.Errorf("tls enabled without cert_file/key_file or dir")
	}
	for _, s := range c.History.Sinks {
		switch s.Type {
		case "clickhouse":
			if s.DSN == "" {
				return fmt.Errorf("history sink clickhouse requires dsn")
			}
		case "opensearch":
			if s.URL == "" {
				return fmt.Errorf("history sink opensearch requires url")
			}
		default:
			return fmt.Errorf("unknown history sink type %q", s.Type)
		}
	}
	return nil
}

// PlansDir is where uploaded test plans live.
func (c Config) PlansDir() string { return filepath.Join(c.DataDir, "plans") }

// ExecutionsDir is the root for per-execution output.
func (c Config) ExecutionsDir() string { return filepath.Join(c.DataDir, "executions") }

// InstallDir is where distribution archives are extracted and activated.
func (c Config) InstallDir() string { return filepath.Join(c.DataDir, "jmeter") }

// LoggerConfig maps the rotation settings onto the console-capture config.
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
